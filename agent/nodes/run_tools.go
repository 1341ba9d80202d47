package turnnode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

// RunTools alternates model calls and tool executions until the model
// answers without tool calls or maxRounds tool rounds have run. Each model
// call is bounded by callTimeout.
func RunTools(ctx context.Context, in *GraphState, maxRounds int, callTimeout time.Duration) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	for round := 0; ; round++ {
		msg, err := generate(ctx, in, callTimeout)
		if err != nil {
			return nil, err
		}

		if len(msg.ToolCalls) == 0 {
			in.Reply = msg.Content
			return in, nil
		}
		if round >= maxRounds {
			in.Reply = ""
			return in, nil
		}

		in.Messages = append(in.Messages, msg)
		for _, call := range msg.ToolCalls {
			name := strings.TrimSpace(call.Function.Name)
			if name == "" {
				return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
			}

			res, err := in.Tools.Execute(ctx, contractx.ToolRequest{
				CallID: call.ID,
				Tool:   name,
				Args:   call.Function.Arguments,
			})
			if err != nil {
				return nil, err
			}

			in.ToolCalls = append(in.ToolCalls, res)
			in.Messages = append(in.Messages, &schema.Message{
				Role:       schema.Tool,
				Content:    res.Content(),
				ToolCallID: call.ID,
			})
		}
	}
}

func generate(ctx context.Context, in *GraphState, callTimeout time.Duration) (*schema.Message, error) {
	callCtx := ctx
	if callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	msg, err := in.Model.Generate(callCtx, in.Messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}

	in.Usage.Calls++
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil && msg.ResponseMeta.Usage.TotalTokens > 0 {
		in.Usage.Reported++
		in.Usage.Total += msg.ResponseMeta.Usage.TotalTokens
	}
	return msg, nil
}
