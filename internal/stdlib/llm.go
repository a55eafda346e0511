package stdlib

import (
	"context"
	"strings"

	"github.com/invariantlabs-ai/invariant-go/internal/ai"
	"github.com/invariantlabs-ai/invariant-go/internal/errors"
)

const llmSystemPrompt = `You are a classifier inside a policy engine.
Decide whether the TEXT satisfies the CRITERION.
Answer with a single word: YES or NO.`

// llmFunc builds the llm(text, criterion) predicate over a provider
// classifier. The predicate is registered cacheable and async; the
// interpreter memoizes it per session and treats each invocation as a
// suspension point.
func llmFunc(classifier ai.Classifier) Func {
	return func(ctx context.Context, args []any, _ map[string]any) (Result, error) {
		text, err := argString("stdlib.llm", args, 0)
		if err != nil {
			return Result{}, err
		}
		criterion, err := argString("stdlib.llm", args, 1)
		if err != nil {
			return Result{}, err
		}

		if classifier == nil || !classifier.IsAvailable() {
			return Result{}, errors.Evaluation("stdlib.llm", "no LLM provider configured")
		}

		userPrompt := "CRITERION: " + criterion + "\n\nTEXT:\n" + text
		answer, err := classifier.Classify(ctx, llmSystemPrompt, userPrompt)
		if err != nil {
			return Result{}, errors.EvaluationWrap(err, "stdlib.llm", "classification failed")
		}

		truth := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(answer)), "YES")
		return Result{Truth: truth, Value: answer}, nil
	}
}
