package contract

import "strings"

// ToolRequest is one tool call emitted by the model.
type ToolRequest struct {
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool"`
	Args   string `json:"args,omitempty"`
}

// ToolResult is what a tool produced for a ToolRequest. Exactly one of Result
// and Error is set; Error carries the customer-facing rejection text.
type ToolResult struct {
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool"`
	Args   string `json:"args,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Content is the text fed back to the model as the tool message.
func (r ToolResult) Content() string {
	if strings.TrimSpace(r.Error) != "" {
		return "Error: " + r.Error
	}
	return r.Result
}

func (r ToolResult) Rejected() bool {
	return strings.TrimSpace(r.Error) != ""
}
