// Package governance gates named pipeline actions against an allow-list and
// keeps an append-only audit trail of every decision and step.
package governance

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/ids-eval/internal/governance/policy"
	"github.com/miradorstack/ids-eval/internal/metrics"
	"github.com/miradorstack/ids-eval/internal/utils"
)

// Actions governed by the default policy.
const (
	ActionReadData      = "read_data"
	ActionRetrieveNotes = "retrieve_notes"
	ActionProposeLabel  = "propose_label"
	ActionWriteResults  = "write_results"
)

// DefaultDetailLimit caps step details written to the audit trail.
const DefaultDetailLimit = 600

type policyFile struct {
	AllowedActions []string `yaml:"allowedActions"`
}

// DefaultAllowedActions returns the embedded allow-list.
func DefaultAllowedActions() ([]string, error) {
	var pf policyFile
	if err := yaml.Unmarshal(policy.Default, &pf); err != nil {
		return nil, fmt.Errorf("parse embedded policy: %w", err)
	}
	return pf.AllowedActions, nil
}

// PolicyGate is a default-deny gate. Check and Record never fail; sink
// errors are logged and the decision still stands.
type PolicyGate struct {
	allowed     map[string]struct{}
	sink        Sink
	logger      *slog.Logger
	detailLimit int
	now         func() time.Time
}

// NewPolicyGate builds a gate over the given allow-list. An empty list
// selects the embedded default policy.
func NewPolicyGate(logger *slog.Logger, sink Sink, allowedActions []string, detailLimit int) (*PolicyGate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	if len(allowedActions) == 0 {
		defaults, err := DefaultAllowedActions()
		if err != nil {
			return nil, err
		}
		allowedActions = defaults
	}
	if detailLimit <= 0 {
		detailLimit = DefaultDetailLimit
	}

	allowed := make(map[string]struct{}, len(allowedActions))
	for _, a := range allowedActions {
		allowed[a] = struct{}{}
	}
	return &PolicyGate{
		allowed:     allowed,
		sink:        sink,
		logger:      logger,
		detailLimit: detailLimit,
		now:         time.Now,
	}, nil
}

// Check reports whether action is allow-listed and audits the decision.
func (g *PolicyGate) Check(action string, metadata map[string]any) bool {
	_, ok := g.allowed[action]
	g.append(AuditEntry{
		Timestamp: g.now().UTC(),
		Kind:      KindAction,
		Name:      action,
		Allowed:   ok,
		Metadata:  maps.Clone(metadata),
	})
	metrics.ObserveGateDecision(action, ok)
	if !ok {
		g.logger.Warn("policy gate denied action", slog.String("action", action))
	}
	return ok
}

// Record audits a pipeline step. Detail is truncated to the configured limit.
func (g *PolicyGate) Record(step, detail string) {
	g.append(AuditEntry{
		Timestamp: g.now().UTC(),
		Kind:      KindStep,
		Name:      step,
		Detail:    utils.Truncate(detail, g.detailLimit),
	})
}

func (g *PolicyGate) append(entry AuditEntry) {
	if err := g.sink.Record(entry); err != nil {
		g.logger.Error("audit append failed", slog.String("name", entry.Name), slog.Any("error", err))
	}
}
