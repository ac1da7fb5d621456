package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/miradorstack/ids-eval/internal/utils"
)

// ParseError reports a model response that is not a JSON verdict object.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("response is not a verdict object: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Verdict is a parsed model decision.
type Verdict struct {
	Label     int
	Rationale string
}

// ParseVerdict strictly decodes {"label": 0|1, "rationale": "..."} from text.
// Any non-zero label is coerced to 1; a missing label means 0 and a missing or
// blank rationale becomes "N/A".
func ParseVerdict(text string) (Verdict, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return Verdict{}, &ParseError{Raw: text, Err: err}
	}
	if raw == nil {
		return Verdict{}, &ParseError{Raw: text, Err: fmt.Errorf("null document")}
	}

	label, err := coerceLabel(raw["label"])
	if err != nil {
		return Verdict{}, &ParseError{Raw: text, Err: err}
	}

	rationale := "N/A"
	switch r := raw["rationale"].(type) {
	case nil:
	case string:
		if strings.TrimSpace(r) != "" {
			rationale = r
		}
	default:
		rationale = fmt.Sprint(r)
	}
	return Verdict{Label: label, Rationale: rationale}, nil
}

func coerceLabel(v any) (int, error) {
	switch l := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if l {
			return 1, nil
		}
		return 0, nil
	case float64:
		if math.IsNaN(l) {
			return 0, fmt.Errorf("label is NaN")
		}
		if math.Trunc(l) != 0 {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(l))
		if err != nil {
			return 0, fmt.Errorf("label %q is not an integer", l)
		}
		if n != 0 {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("label has unsupported type %T", v)
	}
}

var anomalyKeywords = []string{"anom", "suspicious"}

// KeywordVerdict labels free text by looking for anomaly vocabulary. The
// rationale is an excerpt of the text, or a placeholder when the text is blank.
func KeywordVerdict(text string, excerptLimit int) Verdict {
	lower := strings.ToLower(text)
	label := 0
	for _, kw := range anomalyKeywords {
		if strings.Contains(lower, kw) {
			label = 1
			break
		}
	}
	rationale := utils.Truncate(text, excerptLimit)
	if strings.TrimSpace(rationale) == "" {
		rationale = "Empty LLM response."
	}
	return Verdict{Label: label, Rationale: rationale}
}
