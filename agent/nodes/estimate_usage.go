package turnnode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

// EstimateTokens is the fallback accounting when the provider reports no
// usage: input words plus twice the output words.
func EstimateTokens(input, output string) int {
	return len(strings.Fields(input)) + 2*len(strings.Fields(output))
}

// EstimateUsage prefers provider-reported totals and falls back to the word
// heuristic when any model call of the turn came back without usage.
func EstimateUsage(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	out := GraphOutput{
		Reply:     in.Reply,
		ToolCalls: in.ToolCalls,
	}
	if in.Usage.Complete() {
		out.Tokens = in.Usage.Total
	} else {
		out.Tokens = EstimateTokens(in.Text, in.Reply)
		out.Estimated = true
	}
	return out, nil
}
