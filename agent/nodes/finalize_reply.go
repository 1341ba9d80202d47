package turnnode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

const FallbackReply = "I apologize, but I'm having trouble processing your request right now. Please try again or rephrase your question."

// FinalizeReply trims the model answer and substitutes the fallback apology
// when nothing is left.
func FinalizeReply(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Reply = strings.TrimSpace(in.Reply)
	if in.Reply == "" {
		in.Reply = FallbackReply
	}
	return in, nil
}
