package stdlib

import (
	"context"
	"regexp"
	"sort"
)

// piiPatterns are the detector classes reported by the pii predicate.
// Keys are the class names surfaced in Result.Value.
var piiPatterns = map[string]*regexp.Regexp{
	"email": regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`),
	"phone": regexp.MustCompile(`\b(?:\+?\d{1,3}[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
	"ssn":   regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"iban":  regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
	"credit_card": regexp.MustCompile(
		`\b(?:\d[ -]?){13,16}\b`),
}

// secretPatterns mirror the redaction table used for error messages,
// extended with common cloud and VCS token shapes.
var secretPatterns = map[string]*regexp.Regexp{
	"openai_key":    regexp.MustCompile(`\bsk-(?:proj-|svc-)?[a-zA-Z0-9_-]{20,}\b`),
	"anthropic_key": regexp.MustCompile(`\bsk-ant-[a-zA-Z0-9_-]{20,}\b`),
	"gemini_key":    regexp.MustCompile(`\bAIza[a-zA-Z0-9_-]{35,}\b`),
	"github_token":  regexp.MustCompile(`\bgh[pousr]_[a-zA-Z0-9]{36,}\b`),
	"aws_key":       regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`),
	"slack_token":   regexp.MustCompile(`\bxox[baprs]-[a-zA-Z0-9-]{10,}\b`),
	"bearer_token":  regexp.MustCompile(`\bBearer\s+[a-zA-Z0-9_.-]{20,}\b`),
	"url_password":  regexp.MustCompile(`://[^/\s:]+:[^@\s]+@`),
	"private_key":   regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`),
}

// moderationPatterns flag content categories.
var moderationPatterns = map[string]*regexp.Regexp{
	"violence":  regexp.MustCompile(`(?i)\b(?:kill|murder|assault|bomb|massacre)\b`),
	"self_harm": regexp.MustCompile(`(?i)\b(?:suicide|self[- ]harm)\b`),
	"hate":      regexp.MustCompile(`(?i)\b(?:slur|racial hatred|ethnic cleansing)\b`),
}

// injectionPatterns are heuristic prompt-injection markers.
var injectionPatterns = map[string]*regexp.Regexp{
	"override":     regexp.MustCompile(`(?i)ignore (?:all |any )?(?:previous|prior|above) (?:instructions?|prompts?)`),
	"disregard":    regexp.MustCompile(`(?i)disregard (?:the |your )?(?:system prompt|instructions?|rules?)`),
	"role_hijack":  regexp.MustCompile(`(?i)you are now (?:DAN|an? unrestricted)`),
	"exfiltration": regexp.MustCompile(`(?i)(?:reveal|print|repeat) (?:the |your )?(?:system prompt|hidden instructions?)`),
}

// scan runs every pattern over text, collecting matched class names and
// character ranges.
func scan(text string, patterns map[string]*regexp.Regexp) Result {
	var classes []string
	var ranges []Range
	for class, pattern := range patterns {
		locs := pattern.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		classes = append(classes, class)
		for _, loc := range locs {
			ranges = append(ranges, Range{Start: loc[0], End: loc[1]})
		}
	}
	sort.Strings(classes)
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Start != ranges[j].Start {
			return ranges[i].Start < ranges[j].Start
		}
		return ranges[i].End < ranges[j].End
	})
	return Result{Truth: len(classes) > 0, Ranges: ranges, Value: classes}
}

func piiFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	text, err := argString("stdlib.pii", args, 0)
	if err != nil {
		return Result{}, err
	}
	return scan(text, piiPatterns), nil
}

func secretsFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	text, err := argString("stdlib.secrets", args, 0)
	if err != nil {
		return Result{}, err
	}
	return scan(text, secretPatterns), nil
}

func moderationFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	text, err := argString("stdlib.moderated", args, 0)
	if err != nil {
		return Result{}, err
	}
	return scan(text, moderationPatterns), nil
}

func promptInjectionFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	text, err := argString("stdlib.prompt_injection", args, 0)
	if err != nil {
		return Result{}, err
	}
	return scan(text, injectionPatterns), nil
}
