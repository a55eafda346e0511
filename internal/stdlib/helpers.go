package stdlib

import (
	"context"
	"fmt"
	"os"
	"regexp"

	json "github.com/goccy/go-json"

	"github.com/invariantlabs-ai/invariant-go/internal/errors"
	"github.com/invariantlabs-ai/invariant-go/internal/matcher"
	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

func lenFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	if len(args) < 1 {
		return Result{}, errors.Evaluation("stdlib.len", "missing required argument")
	}
	var n int
	switch v := args[0].(type) {
	case nil:
		n = 0
	case string:
		n = len(v)
	case []any:
		n = len(v)
	case map[string]any:
		n = len(v)
	case []trace.ID:
		n = len(v)
	default:
		return Result{}, errors.Evaluation("stdlib.len", fmt.Sprintf("value of type %T has no length", args[0]))
	}
	return Result{Truth: n > 0, Value: float64(n)}, nil
}

func matchFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	pattern, err := argString("stdlib.match", args, 0)
	if err != nil {
		return Result{}, err
	}
	text, err := argString("stdlib.match", args, 1)
	if err != nil {
		return Result{}, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{}, errors.EvaluationWrap(err, "stdlib.match", "invalid pattern")
	}
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return Result{}, nil
	}
	ranges := make([]Range, len(locs))
	for i, loc := range locs {
		ranges[i] = Range{Start: loc[0], End: loc[1]}
	}
	return Result{Truth: true, Ranges: ranges, Value: text[locs[0][0]:locs[0][1]]}, nil
}

// textFunc renders any policy value as a string for inspection by the
// detector predicates.
func textFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	if len(args) < 1 {
		return Result{}, errors.Evaluation("stdlib.text", "missing required argument")
	}
	switch v := args[0].(type) {
	case nil:
		return Result{Value: ""}, nil
	case string:
		return Result{Truth: v != "", Value: v}, nil
	case *trace.Event:
		content := v.Content()
		return Result{Truth: content != "", Value: content}, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return Result{}, errors.EvaluationWrap(err, "stdlib.text", "value is not renderable")
		}
		return Result{Truth: len(encoded) > 0, Value: string(encoded)}, nil
	}
}

func jsonLoadsFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	raw, err := argString("stdlib.json_loads", args, 0)
	if err != nil {
		return Result{}, err
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return Result{}, errors.EvaluationWrap(err, "stdlib.json_loads", "invalid JSON")
	}
	return Result{Truth: value != nil, Value: value}, nil
}

func licenseMatchFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	text, err := argString("stdlib.license_match", args, 0)
	if err != nil {
		return Result{}, err
	}
	matched := matcher.MatchLicense(text)
	value := make([]any, len(matched))
	for i, id := range matched {
		value[i] = id
	}
	return Result{Truth: len(matched) > 0, Value: value}, nil
}

func fuzzyContainsFunc(_ context.Context, args []any, kwargs map[string]any) (Result, error) {
	haystack, err := argString("stdlib.fuzzy_contains", args, 0)
	if err != nil {
		return Result{}, err
	}
	needle, err := argString("stdlib.fuzzy_contains", args, 1)
	if err != nil {
		return Result{}, err
	}
	threshold := 0.0
	if t, ok := kwargs["threshold"]; ok {
		f, ok := t.(float64)
		if !ok {
			return Result{}, errors.Evaluation("stdlib.fuzzy_contains", "threshold must be a number")
		}
		threshold = f
	}
	return Result{Truth: matcher.FuzzyContains(haystack, needle, threshold)}, nil
}

// printFunc emits its arguments as a diagnostic line. It is registered
// non-cacheable: the side effect must happen on every binding attempt,
// and its truth never contributes to a rule's outcome.
func printFunc(_ context.Context, args []any, _ map[string]any) (Result, error) {
	fmt.Fprintln(os.Stderr, args...)
	return Result{Truth: true}, nil
}
