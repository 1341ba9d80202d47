package orderagent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	nodex "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/nodes"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store/storetest"
)

type step struct {
	msg *schema.Message
	err error
}

type fakeModel struct {
	steps  []step
	inputs [][]*schema.Message
	bound  []*schema.ToolInfo
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, append([]*schema.Message(nil), input...))
	if len(f.steps) == 0 {
		return nil, errors.New("provider unavailable")
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	return s.msg, s.err
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.bound = tools
	return f, nil
}

func reply(text string) step {
	return step{msg: schema.AssistantMessage(text, nil)}
}

func callTool(name, args string) step {
	return step{msg: schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call-" + name,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})}
}

func fail(msg string) step {
	return step{err: errors.New(msg)}
}

type fixture struct {
	store   *storetest.Store
	session uuid.UUID
	burger  storex.MenuItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: storetest.New()}
	sess := &storex.Session{}
	if err := f.store.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	f.session = sess.ID
	f.burger = f.store.AddMenuItem(storex.MenuItem{Name: "Burger", Price: storex.Cents(1200), Available: true})
	return f
}

func (f *fixture) request(model *fakeModel, text string) Request {
	return Request{
		Store:          f.store,
		Model:          model,
		ModelName:      "test/model",
		RestaurantName: "Karachi Grill",
		SessionID:      f.session,
		Text:           text,
	}
}

func newAgent(t *testing.T) *Agent {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RetryBackoff = 0
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestProcessPlacesOrderThroughTool(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	args := fmt.Sprintf(`{"items":[{"menu_item_id":"%s","quantity":2}]}`, f.burger.ID)
	model := &fakeModel{steps: []step{
		callTool("place_order", args),
		reply("Your order is placed and pending payment."),
	}}

	res, err := newAgent(t).Process(context.Background(), f.request(model, "two burgers please"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if res.Reply != "Your order is placed and pending payment." {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if res.Attempts != 1 || res.Model != "test/model" {
		t.Fatalf("unexpected result meta: %+v", res)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Tool != "place_order" || res.ToolCalls[0].Rejected() {
		t.Fatalf("unexpected tool calls: %+v", res.ToolCalls)
	}
	if len(model.bound) != 6 {
		t.Fatalf("expected 6 bound tools, got %d", len(model.bound))
	}
	orders := f.store.Orders()
	if len(orders) != 1 || orders[0].TotalPrice != storex.Cents(2400) {
		t.Fatalf("unexpected orders: %+v", orders)
	}
	if !res.Estimated || res.Tokens <= 0 {
		t.Fatalf("expected heuristic token count, got %+v", res)
	}
}

func TestProcessRetryReplaysCommittedTool(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	args := fmt.Sprintf(`{"items":[{"menu_item_id":"%s","quantity":1}]}`, f.burger.ID)
	reordered := fmt.Sprintf(`{ "items": [ { "quantity": 1, "menu_item_id": "%s" } ] }`, f.burger.ID)
	model := &fakeModel{steps: []step{
		callTool("place_order", args),
		fail("upstream 502"),
		callTool("place_order", reordered),
		reply("Done."),
	}}

	res, err := newAgent(t).Process(context.Background(), f.request(model, "one burger"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
	if got := len(f.store.Orders()); got != 1 {
		t.Fatalf("order placed %d times", got)
	}
}

func TestProcessRetriesExhausted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	model := &fakeModel{steps: []step{fail("a"), fail("b"), fail("c"), reply("too late")}}

	_, err := newAgent(t).Process(context.Background(), f.request(model, "hello"))
	if !errors.Is(err, contractx.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected last error to be kept, got %v", err)
	}
	if len(model.inputs) != 3 {
		t.Fatalf("expected 3 model calls, got %d", len(model.inputs))
	}
}

func TestProcessDoesNotRetryValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	model := &fakeModel{steps: []step{reply("unused")}}

	_, err := newAgent(t).Process(context.Background(), f.request(model, "   "))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if len(model.inputs) != 0 {
		t.Fatalf("model should not be called, got %d calls", len(model.inputs))
	}
}

func TestProcessFallbackOnEmptyAnswer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	model := &fakeModel{steps: []step{reply("  ")}}

	res, err := newAgent(t).Process(context.Background(), f.request(model, "hello"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Reply != nodex.FallbackReply {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
}

func TestProcessSendsHistoryWithoutCurrentMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, m := range []storex.Message{
		{Sender: storex.SenderCustomer, Content: "hi"},
		{Sender: storex.SenderAgent, Content: "hello, what would you like?"},
		{Sender: storex.SenderCustomer, Content: "menu please"},
	} {
		m.SessionID = f.session
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := f.store.InsertMessage(ctx, &m); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}
	current := f.store.Messages(f.session)[2]

	model := &fakeModel{steps: []step{reply("Here is the menu.")}}
	req := f.request(model, "menu please")
	req.MessageID = current.ID

	if _, err := newAgent(t).Process(ctx, req); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	input := model.inputs[0]
	if len(input) != 4 {
		t.Fatalf("expected system + 2 history + current, got %d messages", len(input))
	}
	if input[0].Role != schema.System || input[1].Content != "hi" || input[3].Content != "menu please" {
		t.Fatalf("unexpected model input: %+v", input)
	}
}

func TestProcessStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Hour
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	model := &fakeModel{steps: []step{fail("a"), fail("b")}}

	_, err = a.Process(ctx, f.request(model, "hello"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(model.inputs) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(model.inputs))
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.MaxAttempts = 0
	if err := cfg.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := DefaultConfig().FitsWithin(60 * time.Second); err != nil {
		t.Fatalf("25s should fit in 60s: %v", err)
	}
	if err := DefaultConfig().FitsWithin(20 * time.Second); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
