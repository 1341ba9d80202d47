package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	metricsx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/metrics"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

type Name string

const (
	ListMenu            Name = "list_menu"
	PlaceOrder          Name = "place_order"
	SubmitPaymentProof  Name = "submit_payment_proof"
	CancelOrder         Name = "cancel_order"
	GetOrderStatus      Name = "get_order_status"
	AmendSessionDetails Name = "amend_session_details"
)

// mutating tools are memoised per turn so a retried turn replays their
// first outcome instead of running them again.
var mutating = map[Name]bool{
	PlaceOrder:          true,
	SubmitPaymentProof:  true,
	CancelOrder:         true,
	AmendSessionDetails: true,
}

var tracer = otel.Tracer("restaurant-ordering/agent/tool")

// Infos is the fixed tool schema bound to the model.
func Infos() []*schema.ToolInfo {
	customer := map[string]*schema.ParameterInfo{
		"name":             {Type: schema.String, Desc: "Customer name"},
		"phone":            {Type: schema.String, Desc: "Contact phone number"},
		"email":            {Type: schema.String, Desc: "Contact email address"},
		"delivery_address": {Type: schema.String, Desc: "Delivery address"},
		"notes":            {Type: schema.String, Desc: "Special instructions"},
	}

	return []*schema.ToolInfo{
		{
			Name: string(ListMenu),
			Desc: "List available menu items with prices, sizes, deals, servings and dietary information.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"search": {Type: schema.String, Desc: "Optional text to match against item names"},
			}),
		},
		{
			Name: string(PlaceOrder),
			Desc: "Place an order for the current customer. The order starts pending until staff confirm payment.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"items": {
					Type:     schema.Array,
					Desc:     "Items to order",
					Required: true,
					ElemInfo: &schema.ParameterInfo{
						Type: schema.Object,
						SubParams: map[string]*schema.ParameterInfo{
							"menu_item_id": {Type: schema.String, Desc: "ID of the menu item", Required: true},
							"quantity":     {Type: schema.Integer, Desc: "Quantity between 1 and 100", Required: true},
						},
					},
				},
				"customer": {
					Type:      schema.Object,
					Desc:      "Contact details to save with the order",
					SubParams: customer,
				},
			}),
		},
		{
			Name: string(SubmitPaymentProof),
			Desc: "Attach payment proof to a pending order: a transaction reference, an uploaded image URL, or both.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id":  {Type: schema.String, Desc: "ID of the order", Required: true},
				"text":      {Type: schema.String, Desc: "Transaction reference or payment note"},
				"image_url": {Type: schema.String, Desc: "URL of the uploaded payment screenshot"},
			}),
		},
		{
			Name: string(CancelOrder),
			Desc: "Cancel an order of the current customer while the cancellation window is open.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": {Type: schema.String, Desc: "ID of the order", Required: true},
			}),
		},
		{
			Name: string(GetOrderStatus),
			Desc: "Get the status, payment status and total of an order of the current customer.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"order_id": {Type: schema.String, Desc: "ID of the order", Required: true},
			}),
		},
		{
			Name:        string(AmendSessionDetails),
			Desc:        "Update the customer's contact details. Only provided fields change.",
			ParamsOneOf: schema.NewParamsOneOfByParams(customer),
		},
	}
}

// Toolset executes tool calls for one conversation turn. The session is bound
// at construction and never read from model arguments.
type Toolset struct {
	store   storex.Store
	session uuid.UUID
	now     func() time.Time
	metrics *metricsx.Metrics

	mu   sync.Mutex
	memo map[string]contractx.ToolResult
}

type Option func(*Toolset)

func WithClock(now func() time.Time) Option {
	return func(t *Toolset) {
		if now != nil {
			t.now = now
		}
	}
}

func WithMetrics(m *metricsx.Metrics) Option {
	return func(t *Toolset) {
		t.metrics = m
	}
}

func NewToolset(store storex.Store, sessionID uuid.UUID, opts ...Option) *Toolset {
	t := &Toolset{
		store:   store,
		session: sessionID,
		now:     time.Now,
		memo:    map[string]contractx.ToolResult{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Execute runs one tool call. Business rejections come back as a result with
// Error set; a returned error means the store failed and the turn may be
// retried.
func (t *Toolset) Execute(ctx context.Context, req contractx.ToolRequest) (contractx.ToolResult, error) {
	name := Name(strings.TrimSpace(req.Tool))
	ctx, span := tracer.Start(ctx, "tool."+string(name))
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", string(name)))

	out := contractx.ToolResult{CallID: req.CallID, Tool: string(name), Args: req.Args}

	key, mutates := t.memoKey(name, req.Args)
	if mutates {
		if prev, ok := t.lookup(key); ok {
			prev.CallID = req.CallID
			span.SetAttributes(attribute.Bool("tool.replayed", true))
			return prev, nil
		}
	}

	text, err := t.dispatch(ctx, name, req.Args)
	var rej *Rejection
	switch {
	case err == nil:
		out.Result = text
		t.metrics.ToolCall(string(name), "ok")
	case errors.As(err, &rej):
		out.Error = rej.Message
		span.SetAttributes(attribute.String("tool.rejection", rej.Message))
		t.metrics.ToolCall(string(name), "rejected")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		t.metrics.ToolCall(string(name), "error")
		log.Ctx(ctx).Warn().Err(err).Str("tool", string(name)).Msg("tool execution failed")
		return contractx.ToolResult{}, fmt.Errorf("tool=%s: %w", name, err)
	}

	if mutates {
		t.remember(key, out)
	}
	return out, nil
}

func (t *Toolset) dispatch(ctx context.Context, name Name, raw string) (string, error) {
	switch name {
	case ListMenu:
		var args listMenuArgs
		if err := decodeArgs(raw, &args); err != nil {
			return "", err
		}
		return t.listMenu(ctx, args)
	case PlaceOrder:
		var args placeOrderArgs
		if err := decodeArgs(raw, &args); err != nil {
			return "", err
		}
		return t.placeOrder(ctx, args)
	case SubmitPaymentProof:
		var args paymentProofArgs
		if err := decodeArgs(raw, &args); err != nil {
			return "", err
		}
		return t.submitPaymentProof(ctx, args)
	case CancelOrder:
		var args orderRefArgs
		if err := decodeArgs(raw, &args); err != nil {
			return "", err
		}
		return t.cancelOrder(ctx, args)
	case GetOrderStatus:
		var args orderRefArgs
		if err := decodeArgs(raw, &args); err != nil {
			return "", err
		}
		return t.getOrderStatus(ctx, args)
	case AmendSessionDetails:
		var args storex.CustomerDetails
		if err := decodeArgs(raw, &args); err != nil {
			return "", err
		}
		return t.amendSessionDetails(ctx, args)
	default:
		return "", reject(contractx.ErrValidation, "Unknown tool %q", name)
	}
}

func (t *Toolset) memoKey(name Name, raw string) (string, bool) {
	if !mutating[name] {
		return "", false
	}
	return string(name) + ":" + canonicalArgs(raw), true
}

func (t *Toolset) lookup(key string) (contractx.ToolResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.memo[key]
	return r, ok
}

func (t *Toolset) remember(key string, r contractx.ToolResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.memo[key] = r
}

// canonicalArgs re-encodes JSON so key order and whitespace do not matter.
func canonicalArgs(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "{}"
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return string(b)
}
