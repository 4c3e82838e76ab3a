// Package validate sanitizes and constrains untrusted request fields.
package validate

import (
	"encoding/json"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/zhouzirui/apt-chat/backend/internal/model/persona"
)

// DefaultMaxLength is the text limit used when callers pass a non-positive one.
const DefaultMaxLength = 1000

// Context keys that survive Context.
const (
	ContextScenario       = "party_scenario"
	ContextAssessmentStep = "assessment_step"
)

const (
	minRiskScore = 0
	maxRiskScore = 20
	maxStepKey   = 50
	minScenario  = 1
	maxScenario  = 3
)

var (
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
	scriptPattern = regexp.MustCompile(`(?i)(javascript:|on\w+\s*=|<script|</script)`)
	sqlPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(union\s+select|drop\s+table|insert\s+into|delete\s+from|update\s+set)`),
		regexp.MustCompile(`(?i)(exec\s*\(|execute\s+immediate|xp_cmdshell)`),
		regexp.MustCompile(`['";]--`),
		regexp.MustCompile(`(?i)(or\s+1\s*=\s*1|and\s+1\s*=\s*1)`),
	}
	controlPattern    = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F-\x{9F}]`)
	whitespacePattern = regexp.MustCompile(`[\s\p{Z}]+`)
	bidiPattern       = regexp.MustCompile(`[\x{202A}-\x{202E}\x{2066}-\x{2069}]`)
	stepKeyPattern    = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

var allowedPersonas = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range persona.Seed() {
		set[p.ID] = struct{}{}
	}
	return set
}()

// SanitizeText cleans raw user text. Non-string input yields "".
//
// The cleaning pass is repeated until the output stops changing, so that
// SanitizeText(SanitizeText(x)) == SanitizeText(x) even when removing one
// pattern reveals another (e.g. "javajavascript:script:").
func SanitizeText(raw any, maxLength int) string {
	text, ok := raw.(string)
	if !ok {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	for {
		next := sanitizePass(text, maxLength)
		if next == text {
			return next
		}
		text = next
	}
}

// sanitizePass never grows its input, which bounds the fixpoint loop.
func sanitizePass(text string, maxLength int) string {
	text = html.UnescapeString(text)
	text = tagPattern.ReplaceAllString(text, "")
	text = scriptPattern.ReplaceAllString(text, "")
	for _, p := range sqlPatterns {
		text = p.ReplaceAllString(text, "")
	}
	text = strings.ReplaceAll(text, "\x00", "")
	text = controlPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = bidiPattern.ReplaceAllString(text, "")
	text = truncateRunes(text, maxLength)
	return strings.TrimSpace(text)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Persona reports whether tag is one of the allowed chatbot personas.
func Persona(tag string) bool {
	_, ok := allowedPersonas[tag]
	return ok
}

// RiskScore coerces v to an integer in [0, 20]. Anything else is absent.
func RiskScore(v any) (int, bool) {
	score, ok := toInt(v)
	if !ok || score < minRiskScore || score > maxRiskScore {
		return 0, false
	}
	return score, true
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) || math.Abs(val) > math.MaxInt32 {
			return 0, false
		}
		return int(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n), true
		}
		if f, err := val.Float64(); err == nil {
			return toInt(f)
		}
		return 0, false
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return n, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// StepKey accepts alphanumeric/underscore keys of at most 50 characters.
func StepKey(key any) bool {
	s, ok := key.(string)
	if !ok || len(s) > maxStepKey {
		return false
	}
	return stepKeyPattern.MatchString(s)
}

// Context keeps only whitelisted, type-checked keys of a conversation
// context. Everything else is dropped silently.
func Context(v any) map[string]any {
	raw, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}

	out := make(map[string]any)
	if n, ok := integral(raw[ContextScenario]); ok && n >= minScenario && n <= maxScenario {
		out[ContextScenario] = n
	}
	if step, ok := raw[ContextAssessmentStep].(string); ok && StepKey(step) {
		out[ContextAssessmentStep] = step
	}
	return out
}

// integral accepts whole JSON numbers and booleans (true is 1, false is 0);
// strings are rejected.
func integral(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case float64:
		if val != math.Trunc(val) || math.Abs(val) > math.MaxInt32 {
			return 0, false
		}
		return int(val), true
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// Scenario returns the scripted scenario number of a validated context.
func Scenario(ctx map[string]any) (int, bool) {
	n, ok := ctx[ContextScenario].(int)
	return n, ok
}
