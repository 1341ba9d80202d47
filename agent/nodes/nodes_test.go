package turnnode

import (
	"context"
	"errors"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store/storetest"
)

type scriptedModel struct {
	responses []*schema.Message
	inputs    [][]*schema.Message
	err       error
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	msg := m.responses[0]
	m.responses = m.responses[1:]
	return msg, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

type echoTools struct {
	calls []contractx.ToolRequest
	err   error
}

func (e *echoTools) Execute(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	e.calls = append(e.calls, req)
	if e.err != nil {
		return contractx.ToolResult{}, e.err
	}
	return contractx.ToolResult{CallID: req.CallID, Tool: req.Tool, Args: req.Args, Result: "result of " + req.Tool}, nil
}

func toolCall(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func withUsage(msg *schema.Message, total int) *schema.Message {
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{TotalTokens: total}}
	return msg
}

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func newState(t *testing.T, model *scriptedModel, tools *echoTools, history HistoryReader) *GraphState {
	t.Helper()
	st, err := ValidateRequest(GraphInput{
		SessionID: uuid.New(),
		Text:      "  two burgers please ",
		System:    schema.SystemMessage("system"),
		History:   history,
		Model:     model,
		Tools:     tools,
	}, fixedNow)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	return st
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	_, err := ValidateRequest(GraphInput{Text: "hi"}, fixedNow)
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	_, err = ValidateRequest(GraphInput{SessionID: uuid.New(), Text: "   "}, fixedNow)
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	_, err = ValidateRequest(GraphInput{SessionID: uuid.New(), Text: "hi"}, fixedNow)
	if !errors.Is(err, contractx.ErrValidation) || !errors.Is(err, ErrMissingDeps) {
		t.Fatalf("expected missing deps validation error, got %v", err)
	}
}

func TestLoadHistoryOrdersPriorMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.New()
	model := &scriptedModel{}
	st := newState(t, model, &echoTools{}, store)

	base := fixedNow()
	prior := []storex.Message{
		{SessionID: st.SessionID, Sender: storex.SenderCustomer, Content: "hello", CreatedAt: base},
		{SessionID: st.SessionID, Sender: storex.SenderAgent, Content: "welcome", CreatedAt: base.Add(time.Second)},
		{SessionID: st.SessionID, Sender: storex.SenderCustomer, Content: "two burgers please", CreatedAt: base.Add(2 * time.Second)},
	}
	for i := range prior {
		if err := store.InsertMessage(ctx, &prior[i]); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}
	st.ExcludeMessageID = prior[2].ID

	out, err := LoadHistory(ctx, st, 15)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}

	if len(out.Messages) != 4 {
		t.Fatalf("expected system + 2 history + new message, got %d", len(out.Messages))
	}
	want := []struct {
		role    schema.RoleType
		content string
	}{
		{schema.System, "system"},
		{schema.User, "hello"},
		{schema.Assistant, "welcome"},
		{schema.User, "two burgers please"},
	}
	for i, w := range want {
		if out.Messages[i].Role != w.role || out.Messages[i].Content != w.content {
			t.Fatalf("message %d = %s/%q, want %s/%q", i, out.Messages[i].Role, out.Messages[i].Content, w.role, w.content)
		}
	}
}

func TestLoadHistoryRespectsLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.New()
	st := newState(t, &scriptedModel{}, &echoTools{}, store)
	for i := 0; i < 20; i++ {
		m := &storex.Message{SessionID: st.SessionID, Sender: storex.SenderCustomer, Content: "m", CreatedAt: fixedNow().Add(time.Duration(i) * time.Second)}
		if err := store.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}

	out, err := LoadHistory(ctx, st, 15)
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(out.Messages) != 17 {
		t.Fatalf("expected 15 history messages plus system and new message, got %d", len(out.Messages))
	}
}

func TestRunToolsFeedsResultsBack(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{toolCall("call-1", "list_menu", `{}`)}),
		schema.AssistantMessage("Burgers are $12.", nil),
	}}
	tools := &echoTools{}
	st := newState(t, model, tools, storetest.New())
	st.Messages = []*schema.Message{st.System, schema.UserMessage(st.Text)}

	out, err := RunTools(context.Background(), st, 4, time.Second)
	if err != nil {
		t.Fatalf("RunTools() error = %v", err)
	}
	if out.Reply != "Burgers are $12." {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	if len(tools.calls) != 1 || tools.calls[0].Tool != "list_menu" {
		t.Fatalf("unexpected tool calls: %#v", tools.calls)
	}
	second := model.inputs[1]
	last := second[len(second)-1]
	if last.Role != schema.Tool || last.ToolCallID != "call-1" || last.Content != "result of list_menu" {
		t.Fatalf("tool result not fed back: %#v", last)
	}
	if len(out.ToolCalls) != 1 {
		t.Fatalf("expected one recorded tool call, got %d", len(out.ToolCalls))
	}
}

func TestRunToolsStopsAfterMaxRounds(t *testing.T) {
	t.Parallel()

	loop := func() *schema.Message {
		return schema.AssistantMessage("", []schema.ToolCall{toolCall("c", "list_menu", `{}`)})
	}
	model := &scriptedModel{responses: []*schema.Message{loop(), loop(), loop()}}
	tools := &echoTools{}
	st := newState(t, model, tools, storetest.New())

	out, err := RunTools(context.Background(), st, 2, 0)
	if err != nil {
		t.Fatalf("RunTools() error = %v", err)
	}
	if out.Reply != "" {
		t.Fatalf("expected empty reply, got %q", out.Reply)
	}
	if len(tools.calls) != 2 {
		t.Fatalf("expected 2 tool rounds, got %d", len(tools.calls))
	}
}

func TestRunToolsWrapsModelError(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{err: errors.New("503 from provider")}
	st := newState(t, model, &echoTools{}, storetest.New())

	_, err := RunTools(context.Background(), st, 4, time.Second)
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

func TestRunToolsPropagatesToolFailure(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{responses: []*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{toolCall("c", "place_order", `{}`)}),
	}}
	tools := &echoTools{err: contractx.ErrInfrastructure}
	st := newState(t, model, tools, storetest.New())

	_, err := RunTools(context.Background(), st, 4, time.Second)
	if !errors.Is(err, contractx.ErrInfrastructure) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
}

func TestFinalizeReplyFallback(t *testing.T) {
	t.Parallel()

	out, err := FinalizeReply(&GraphState{Reply: " \n "})
	if err != nil {
		t.Fatalf("FinalizeReply() error = %v", err)
	}
	if out.Reply != FallbackReply {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}

	out, _ = FinalizeReply(&GraphState{Reply: "  Sure.  "})
	if out.Reply != "Sure." {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
}

func TestEstimateUsage(t *testing.T) {
	t.Parallel()

	if got := EstimateTokens("two burgers please", "Your order is placed"); got != 3+2*4 {
		t.Fatalf("unexpected estimate: %d", got)
	}

	st := &GraphState{GraphInput: GraphInput{Text: "hi there"}, Reply: "hello"}
	st.Usage = UsageTally{Calls: 2, Reported: 2, Total: 310}
	out, _ := EstimateUsage(st)
	if out.Tokens != 310 || out.Estimated {
		t.Fatalf("expected provider usage, got %+v", out)
	}

	st.Usage = UsageTally{Calls: 2, Reported: 1, Total: 150}
	out, _ = EstimateUsage(st)
	if out.Tokens != 2+2*1 || !out.Estimated {
		t.Fatalf("expected heuristic, got %+v", out)
	}
}

func TestGenerateCountsUsage(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{responses: []*schema.Message{withUsage(schema.AssistantMessage("ok", nil), 42)}}
	st := newState(t, model, &echoTools{}, storetest.New())

	if _, err := RunTools(context.Background(), st, 1, time.Second); err != nil {
		t.Fatalf("RunTools() error = %v", err)
	}
	if !st.Usage.Complete() || st.Usage.Total != 42 {
		t.Fatalf("unexpected usage: %+v", st.Usage)
	}
}
