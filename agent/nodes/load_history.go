package turnnode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

// LoadHistory builds the model input: system prompt, up to limit prior
// messages oldest first, then the new customer message.
func LoadHistory(ctx context.Context, in *GraphState, limit int) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	history, err := in.History.RecentMessages(ctx, in.SessionID, limit, in.ExcludeMessageID)
	if err != nil {
		return nil, err
	}

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, in.System)
	for _, m := range history {
		switch m.Sender {
		case storex.SenderCustomer:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case storex.SenderAgent:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}
	msgs = append(msgs, schema.UserMessage(in.Text))

	in.Messages = msgs
	return in, nil
}
