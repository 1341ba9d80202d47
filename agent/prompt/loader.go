package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

//go:embed template/system.txt
var systemRaw string

// Refusal is the fixed sentence used for out-of-scope requests.
func Refusal(restaurant string) string {
	return fmt.Sprintf("I can only help with %s menu, orders, and policies.", restaurant)
}

// System renders the system prompt for one restaurant. It is safe for
// concurrent use; the template is parsed per call.
func System(ctx context.Context, restaurant string) (*schema.Message, error) {
	restaurant = strings.TrimSpace(restaurant)
	if restaurant == "" {
		restaurant = "the restaurant"
	}

	tpl := einoprompt.FromMessages(schema.FString, schema.SystemMessage(strings.TrimSpace(systemRaw)))
	msgs, err := tpl.Format(ctx, map[string]any{
		"restaurant": sanitize(restaurant),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render system prompt: %v", contractx.ErrValidation, err)
	}
	if len(msgs) != 1 {
		return nil, fmt.Errorf("%w: system prompt rendered %d messages", contractx.ErrValidation, len(msgs))
	}
	return msgs[0], nil
}

const maxNameRunes = 120

// sanitize keeps a tenant-controlled name from breaking out of its line.
func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, name)
	if r := []rune(name); len(r) > maxNameRunes {
		name = string(r[:maxNameRunes])
	}
	return name
}
