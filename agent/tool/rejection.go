package tool

import "fmt"

// Rejection is a business-rule refusal. Its Message is shown to the model as
// the tool result; Kind is one of the contract sentinel errors.
type Rejection struct {
	Kind    error
	Message string
}

func (r *Rejection) Error() string { return r.Message }

func (r *Rejection) Unwrap() error { return r.Kind }

func reject(kind error, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
