package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/ids-eval/internal/governance"
	"github.com/miradorstack/ids-eval/internal/llm"
	"github.com/miradorstack/ids-eval/internal/models"
	"github.com/miradorstack/ids-eval/internal/retrieval"
	"github.com/miradorstack/ids-eval/internal/utils"
)

type stubService struct {
	text    string
	err     error
	prompts []string
}

func (s *stubService) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.text, s.err
}

type stubIndex struct {
	notes []string
	err   error
	calls int
}

func (s *stubIndex) Retrieve(_ models.WindowRecord, k int) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.notes) {
		return s.notes[:k], nil
	}
	return s.notes, nil
}

var burst = models.WindowRecord{WindowID: 7, BytesPerSec: 5e7, PktsPerSec: 90000, SynRate: 41, FailedConnRate: 0.02}

func newGate(t *testing.T, allowed ...string) (*governance.PolicyGate, *governance.MemorySink) {
	t.Helper()
	sink := &governance.MemorySink{}
	gate, err := governance.NewPolicyGate(utils.DiscardLogger(), sink, allowed, 0)
	require.NoError(t, err)
	return gate, sink
}

func names(entries []governance.AuditEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestLabelParsesStrictVerdict(t *testing.T) {
	gate, sink := newGate(t)
	svc := &stubService{text: ` {"label": 1, "rationale": "bytes_per_sec spike"} `}
	idx := &stubIndex{notes: []string{"n1", "n2", "n3"}}
	l := NewLabeler(utils.DiscardLogger(), gate, idx, svc, Options{TopK: 2}, nil)

	res := l.Label(context.Background(), burst)
	assert.Equal(t, models.AgentResult{WindowID: 7, Label: 1, Rationale: "bytes_per_sec spike", Outcome: models.OutcomeParsed}, res)

	require.Len(t, svc.prompts, 1)
	assert.Contains(t, svc.prompts[0], "- n1\n- n2\n")
	assert.NotContains(t, svc.prompts[0], "n3")
	assert.Contains(t, svc.prompts[0], `"window_id": 7`)

	entries := sink.Entries()
	assert.Equal(t, []string{"propose_label", "retrieve_notes", "prompt", "llm_response"}, names(entries))
	assert.Equal(t, map[string]any{"window_id": int64(7)}, entries[0].Metadata)
	assert.Equal(t, map[string]any{"k": 2}, entries[1].Metadata)
}

func TestLabelDeniedSkipsAllWork(t *testing.T) {
	gate, sink := newGate(t, governance.ActionReadData)
	svc := &stubService{text: `{"label": 1}`}
	idx := &stubIndex{notes: []string{"n1"}}
	l := NewLabeler(utils.DiscardLogger(), gate, idx, svc, Options{}, nil)

	res := l.Label(context.Background(), burst)
	assert.Equal(t, 0, res.Label)
	assert.Equal(t, DeniedRationale, res.Rationale)
	assert.Equal(t, models.OutcomeDenied, res.Outcome)
	assert.Empty(t, svc.prompts)
	assert.Zero(t, idx.calls)
	assert.Equal(t, []string{"propose_label"}, names(sink.Entries()))
}

func TestLabelServiceFailure(t *testing.T) {
	gate, sink := newGate(t)
	svc := &stubService{err: &llm.CallError{Kind: llm.KindStatus, Msg: "ollama returned 503 Service Unavailable"}}
	latency := utils.NewLatencyTracker(10)
	l := NewLabeler(utils.DiscardLogger(), gate, &stubIndex{}, svc, Options{}, latency)

	res := l.Label(context.Background(), burst)
	assert.Equal(t, 0, res.Label)
	assert.Equal(t, "LLM error: ollama returned 503 Service Unavailable", res.Rationale)
	assert.Equal(t, models.OutcomeError, res.Outcome)
	assert.Equal(t, 1, latency.Stats().Count)

	entries := sink.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, "llm_error", last.Name)
	assert.Contains(t, last.Detail, "503")
}

func TestLabelPlainErrorStillRecovers(t *testing.T) {
	gate, _ := newGate(t)
	l := NewLabeler(utils.DiscardLogger(), gate, &stubIndex{}, &stubService{err: errors.New("boom")}, Options{}, nil)
	res := l.Label(context.Background(), burst)
	assert.Equal(t, 0, res.Label)
	assert.True(t, strings.HasPrefix(res.Rationale, "LLM error:"))
}

func TestLabelKeywordFallback(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		label int
	}{
		{name: "anomalous prose", text: "This window looks Anomalous due to bytes_per_sec.", label: 1},
		{name: "suspicious prose", text: "SUSPICIOUS SYN activity", label: 1},
		{name: "normal prose", text: "Traffic is within normal range.", label: 0},
		{name: "fenced json", text: "```json\n{\"label\": 0, \"rationale\": \"normal\"}\n```", label: 0},
		{name: "fractional string label", text: `{"label": "1.5", "rationale": "suspicious burst"}`, label: 1},
		{name: "fractional string label without keywords", text: `{"label": "1.5", "rationale": "busy"}`, label: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate, _ := newGate(t)
			l := NewLabeler(utils.DiscardLogger(), gate, &stubIndex{}, &stubService{text: tc.text}, Options{}, nil)
			res := l.Label(context.Background(), burst)
			assert.Equal(t, tc.label, res.Label)
			assert.Equal(t, models.OutcomeFallback, res.Outcome)
			assert.Equal(t, utils.Truncate(tc.text, 160), res.Rationale)
		})
	}
}

func TestLabelFallbackExcerptIsBounded(t *testing.T) {
	gate, _ := newGate(t)
	long := strings.Repeat("suspicious ", 40)
	l := NewLabeler(utils.DiscardLogger(), gate, &stubIndex{}, &stubService{text: long}, Options{ExcerptLimit: 160}, nil)
	res := l.Label(context.Background(), burst)
	assert.Equal(t, 1, res.Label)
	assert.Len(t, res.Rationale, 160)
}

func TestLabelEmptyResponse(t *testing.T) {
	gate, _ := newGate(t)
	l := NewLabeler(utils.DiscardLogger(), gate, &stubIndex{}, &stubService{text: "  "}, Options{}, nil)
	res := l.Label(context.Background(), burst)
	assert.Equal(t, 0, res.Label)
	assert.NotEmpty(t, res.Rationale)
}

func TestRetrievePolicyAuditedButNotEnforcedByDefault(t *testing.T) {
	gate, sink := newGate(t, governance.ActionProposeLabel)
	idx := &stubIndex{notes: []string{"volumetric note"}}
	svc := &stubService{text: `{"label": 0, "rationale": "ok"}`}
	l := NewLabeler(utils.DiscardLogger(), gate, idx, svc, Options{}, nil)

	l.Label(context.Background(), burst)
	assert.Equal(t, 1, idx.calls)
	assert.Contains(t, svc.prompts[0], "volumetric note")

	entries := sink.Entries()
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Equal(t, "retrieve_notes", entries[1].Name)
	assert.False(t, entries[1].Allowed)
}

func TestRetrievePolicyEnforced(t *testing.T) {
	gate, sink := newGate(t, governance.ActionProposeLabel)
	idx := &stubIndex{notes: []string{"volumetric note"}}
	svc := &stubService{text: `{"label": 0, "rationale": "ok"}`}
	l := NewLabeler(utils.DiscardLogger(), gate, idx, svc, Options{EnforceRetrievePolicy: true, TopK: 3}, nil)

	res := l.Label(context.Background(), burst)
	assert.Equal(t, models.OutcomeParsed, res.Outcome)
	assert.Zero(t, idx.calls)
	assert.NotContains(t, svc.prompts[0], "volumetric note")
	assert.Equal(t, map[string]any{"k": 3}, sink.Entries()[1].Metadata)
}

func TestRetrievalErrorLeavesNoNotes(t *testing.T) {
	gate, _ := newGate(t)
	svc := &stubService{text: `{"label": 1, "rationale": "syn_rate high"}`}
	l := NewLabeler(utils.DiscardLogger(), gate, &stubIndex{err: errors.New("corpus unreadable")}, svc, Options{}, nil)
	res := l.Label(context.Background(), burst)
	assert.Equal(t, 1, res.Label)
	assert.True(t, strings.HasSuffix(svc.prompts[0], "Notes:\n"))
}

func TestLabelWithRealIndex(t *testing.T) {
	gate, _ := newGate(t)
	svc := &stubService{text: `{"label": 1, "rationale": "volumetric"}`}
	l := NewLabeler(utils.DiscardLogger(), gate, retrieval.NewIndexFromNotes(retrieval.DefaultNotes), svc, Options{TopK: 2}, nil)
	l.Label(context.Background(), burst)
	assert.Contains(t, svc.prompts[0], "- "+retrieval.DefaultNotes[0])
}
