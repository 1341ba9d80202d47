package turnnode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

var (
	ErrInvalidMessage = fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	ErrInvalidSession = fmt.Errorf("%w: session id is empty", contractx.ErrValidation)
	ErrMissingDeps    = errors.New("turn dependencies are missing")
)

// HistoryReader is the slice of the tenant store the history node needs.
type HistoryReader interface {
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int, exclude uuid.UUID) ([]storex.Message, error)
}

// ToolRunner executes one tool call for the current session.
type ToolRunner interface {
	Execute(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error)
}

// GraphInput carries one turn. The graph is compiled once, so everything
// tenant specific travels in the input.
type GraphInput struct {
	SessionID        uuid.UUID
	Text             string
	ExcludeMessageID uuid.UUID

	System  *schema.Message
	History HistoryReader
	Model   einomodel.ToolCallingChatModel
	Tools   ToolRunner
}

type GraphOutput struct {
	Reply     string
	ToolCalls []contractx.ToolResult
	Tokens    int
	Estimated bool
}

type GraphState struct {
	GraphInput
	Now time.Time

	Messages  []*schema.Message
	Reply     string
	ToolCalls []contractx.ToolResult
	Usage     UsageTally
}

// UsageTally sums provider-reported usage over the model calls of a turn.
type UsageTally struct {
	Calls    int
	Reported int
	Total    int
}

func (u UsageTally) Complete() bool {
	return u.Calls > 0 && u.Calls == u.Reported
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	if in.SessionID == uuid.Nil {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	if in.System == nil || in.History == nil || in.Model == nil || in.Tools == nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, ErrMissingDeps)
	}

	in.Text = text
	return &GraphState{
		GraphInput: in,
		Now:        nowFn().UTC(),
	}, nil
}
