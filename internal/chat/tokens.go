package chat

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// estimateTokens backs spec.md §4.4's reasoning-token estimator ("when the
// provider did not report reasoning tokens, an estimator may add them"),
// and spec.md §6's tokens_estimation[_default_encoding] knob more broadly.
// Grounded on the teacher's own use of pkoukk/tiktoken-go for token
// counting where a provider's native API doesn't return counts.
var (
	encodingName = "cl100k_base"
	encOnce      sync.Once
	enc          *tiktoken.Tiktoken
	estimationEnabled = true
)

// SetDefaultEncoding overrides the tiktoken encoding used for estimation,
// read from the tokens_estimation_default_encoding configuration key.
func SetDefaultEncoding(name string) {
	if name != "" {
		encodingName = name
	}
}

// SetEstimationEnabled toggles the whole estimator per the tokens_estimation
// configuration key; disabled leaves responses missing a provider token
// count as-is rather than backfilling an estimate.
func SetEstimationEnabled(enabled bool) {
	estimationEnabled = enabled
}

// EstimationEnabled reports the current tokens_estimation setting, so
// response-assembly code can skip building a reasoning_tokens estimate
// block entirely rather than estimate a value of zero.
func EstimationEnabled() bool {
	return estimationEnabled
}

func encoder() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			e, _ = tiktoken.GetEncoding("cl100k_base")
		}
		enc = e
	})
	return enc
}

func estimateTokens(text string) int {
	if text == "" || !estimationEnabled {
		return 0
	}
	e := encoder()
	if e == nil {
		return len(text) / 4
	}
	return len(e.Encode(text, nil, nil))
}
