package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

const maxQuantity = 100

type listMenuArgs struct {
	Search string `json:"search" validate:"omitempty,max=100"`
}

type orderLine struct {
	MenuItemID string `json:"menu_item_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"min=1,max=100"`
}

type placeOrderArgs struct {
	Items    []orderLine             `json:"items" validate:"required,min=1,max=50,dive"`
	Customer *storex.CustomerDetails `json:"customer"`
}

type paymentProofArgs struct {
	OrderID  string `json:"order_id" validate:"required,uuid"`
	Text     string `json:"text" validate:"omitempty,max=1000"`
	ImageURL string `json:"image_url" validate:"omitempty,url,max=2048"`
}

type orderRefArgs struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeArgs parses the model's JSON arguments into dst and validates them.
// Unknown fields, such as a session id, are ignored.
func decodeArgs(raw string, dst any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return reject(contractx.ErrValidation, "Invalid arguments: expected a JSON object matching the tool schema")
	}
	if err := validate.Struct(dst); err != nil {
		return reject(contractx.ErrValidation, "%s", describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid arguments"
	}

	fe := verrs[0]
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Missing required argument %s", field)
	case "uuid":
		return fmt.Sprintf("Invalid %s: must be an ID from a previous tool result", field)
	case "email":
		return fmt.Sprintf("Invalid %s: not an email address", field)
	case "url":
		return fmt.Sprintf("Invalid %s: not a URL", field)
	case "min", "max":
		if strings.HasSuffix(field, "quantity") {
			return fmt.Sprintf("Invalid %s: must be between 1 and %d", field, maxQuantity)
		}
		return fmt.Sprintf("Invalid %s: must satisfy %s=%s", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("Invalid %s", field)
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
