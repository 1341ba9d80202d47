package store

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderInProcess  OrderStatus = "in_process"
	OrderReady      OrderStatus = "ready"
	OrderInDelivery OrderStatus = "in_delivery"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	CustomerName    string    `bun:"customer_name" json:"customer_name,omitempty"`
	Phone           string    `bun:"phone" json:"phone,omitempty"`
	Email           string    `bun:"email" json:"email,omitempty"`
	DeliveryAddress string    `bun:"delivery_address" json:"delivery_address,omitempty"`
	Notes           string    `bun:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// CustomerDetails is a partial update of the contact fields of a session.
// Empty fields are left untouched.
type CustomerDetails struct {
	Name            string `json:"name,omitempty" validate:"omitempty,max=120"`
	Phone           string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email           string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	DeliveryAddress string `json:"delivery_address,omitempty" validate:"omitempty,max=500"`
	Notes           string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func (d CustomerDetails) IsEmpty() bool {
	return strings.TrimSpace(d.Name) == "" &&
		strings.TrimSpace(d.Phone) == "" &&
		strings.TrimSpace(d.Email) == "" &&
		strings.TrimSpace(d.DeliveryAddress) == "" &&
		strings.TrimSpace(d.Notes) == ""
}

// Apply copies the non-empty fields of d and reports whether anything changed.
func (s *Session) Apply(d CustomerDetails) bool {
	changed := false
	set := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&s.CustomerName, d.Name)
	set(&s.Phone, d.Phone)
	set(&s.Email, d.Email)
	set(&s.DeliveryAddress, d.DeliveryAddress)
	set(&s.Notes, d.Notes)
	return changed
}

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID         uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	SessionID  uuid.UUID `bun:"session_id,type:uuid,notnull" json:"session_id"`
	Sender     Sender    `bun:"sender,notnull" json:"sender"`
	Content    string    `bun:"content,notnull" json:"content"`
	TokenCount int       `bun:"token_count,notnull,default:0" json:"token_count"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type TokenUsage struct {
	bun.BaseModel `bun:"table:token_usage,alias:tu"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	SessionID uuid.UUID `bun:"session_id,type:uuid,notnull"`
	Tokens    int       `bun:"tokens,notnull"`
	Model     string    `bun:"model"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type Menu struct {
	bun.BaseModel `bun:"table:menus,alias:mn"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description string    `bun:"description" json:"description,omitempty"`
	IsActive    bool      `bun:"is_active,notnull,default:true" json:"is_active"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type Size struct {
	Name  string `json:"name"`
	Price Money  `json:"price"`
}

type Deal struct {
	Name            string  `json:"name"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	DiscountAmount  Money   `json:"discount_amount,omitempty"`
	Description     string  `json:"description,omitempty"`
}

type Serving struct {
	Name        string  `json:"name"`
	Multiplier  float64 `json:"multiplier"`
	Description string  `json:"description,omitempty"`
}

type MenuItem struct {
	bun.BaseModel `bun:"table:menu_items,alias:mi"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	MenuID          uuid.UUID `bun:"menu_id,type:uuid,nullzero" json:"menu_id,omitempty"`
	Name            string    `bun:"name,notnull" json:"name"`
	Description     string    `bun:"description" json:"description,omitempty"`
	Price           Money     `bun:"price,type:numeric(10,2),notnull" json:"price"`
	Category        string    `bun:"category" json:"category,omitempty"`
	ImageURL        string    `bun:"image_url" json:"image_url,omitempty"`
	IsVegetarian    bool      `bun:"is_vegetarian,notnull,default:false" json:"is_vegetarian"`
	IsVegan         bool      `bun:"is_vegan,notnull,default:false" json:"is_vegan"`
	SpiceLevel      int       `bun:"spice_level,notnull,default:0" json:"spice_level"`
	PreparationTime int       `bun:"preparation_time,notnull,default:0" json:"preparation_time"`
	Available       bool      `bun:"available,notnull,default:true" json:"available"`
	Sizes           []Size    `bun:"sizes,type:jsonb" json:"sizes,omitempty"`
	Deals           []Deal    `bun:"deals,type:jsonb" json:"deals,omitempty"`
	Servings        []Serving `bun:"servings,type:jsonb" json:"servings,omitempty"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID               uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	SessionID        uuid.UUID     `bun:"session_id,type:uuid,notnull" json:"session_id"`
	Status           OrderStatus   `bun:"status,notnull" json:"status"`
	PaymentStatus    PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	TotalPrice       Money         `bun:"total_price,type:numeric(10,2),notnull" json:"total_price"`
	PaymentProofText string        `bun:"payment_proof_text" json:"payment_proof_text,omitempty"`
	PaymentProofURL  string        `bun:"payment_proof_url" json:"payment_proof_url,omitempty"`
	CustomerName     string        `bun:"customer_name" json:"customer_name,omitempty"`
	Phone            string        `bun:"phone" json:"phone,omitempty"`
	DeliveryAddress  string        `bun:"delivery_address" json:"delivery_address,omitempty"`
	CreatedAt        time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time     `bun:"updated_at,notnull" json:"updated_at"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
}

type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID         uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	OrderID    uuid.UUID `bun:"order_id,type:uuid,notnull" json:"order_id"`
	MenuItemID uuid.UUID `bun:"menu_item_id,type:uuid,notnull" json:"menu_item_id"`
	Name       string    `bun:"name,notnull" json:"name"`
	Quantity   int       `bun:"quantity,notnull" json:"quantity"`
	UnitPrice  Money     `bun:"unit_price,type:numeric(10,2),notnull" json:"unit_price"`
}

func (i OrderItem) LineTotal() Money {
	return i.UnitPrice.Mul(i.Quantity)
}

const (
	DefaultCancellationWindow  = 15 * time.Minute
	DefaultPaymentInstructions = "Please contact us for payment details."
	DefaultTimezone            = "Asia/Karachi"
)

// Settings is the single per-tenant configuration row.
type Settings struct {
	bun.BaseModel `bun:"table:settings,alias:st"`

	ID                        bool      `bun:"id,pk,default:true"`
	CancellationWindowMinutes int       `bun:"cancellation_window_minutes,notnull,default:15"`
	PaymentInstructions       string    `bun:"payment_instructions"`
	Timezone                  string    `bun:"timezone"`
	UpdatedAt                 time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func DefaultSettings() Settings {
	return Settings{
		ID:                        true,
		CancellationWindowMinutes: int(DefaultCancellationWindow / time.Minute),
		PaymentInstructions:       DefaultPaymentInstructions,
		Timezone:                  DefaultTimezone,
	}
}

// CancellationWindow is how long after placing an order a customer may
// cancel it. Zero or less means customers cannot cancel; a tenant without a
// settings row gets DefaultSettings instead.
func (s Settings) CancellationWindow() time.Duration {
	if s.CancellationWindowMinutes <= 0 {
		return 0
	}
	return time.Duration(s.CancellationWindowMinutes) * time.Minute
}

func (s Settings) Payment() string {
	if p := strings.TrimSpace(s.PaymentInstructions); p != "" {
		return p
	}
	return DefaultPaymentInstructions
}

// Location resolves the tenant timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
