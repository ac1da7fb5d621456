package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/miradorstack/ids-eval/internal/models"
)

const promptHeader = `You are a network IDS analyst.
Given a window-level NetFlow summary and a few notes, decide if the window is ANOMALOUS (1) or NORMAL (0).
Return strict JSON: {"label": 0 or 1, "rationale": "<one sentence>"}
`

// RenderPrompt embeds the raw window statistics and retrieved notes into the
// labeling instruction.
func RenderPrompt(w models.WindowRecord, notes []string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\nWindow stats: ")
	b.WriteString(windowStats(w))
	b.WriteString("\nNotes:\n")
	for _, n := range notes {
		b.WriteString("- ")
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return b.String()
}

func windowStats(w models.WindowRecord) string {
	return fmt.Sprintf(`{"window_id": %d, "%s": %s, "%s": %s, "%s": %s, "%s": %s}`,
		w.WindowID,
		models.FeatureBytesPerSec, formatFloat(w.BytesPerSec),
		models.FeaturePktsPerSec, formatFloat(w.PktsPerSec),
		models.FeatureSynRate, formatFloat(w.SynRate),
		models.FeatureFailedConnRate, formatFloat(w.FailedConnRate),
	)
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
