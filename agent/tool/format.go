package tool

import (
	"fmt"
	"strings"
	"time"

	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

const timeLayout = "2006-01-02 15:04"

func formatMenu(items []storex.MenuItem) string {
	if len(items) == 0 {
		return "No menu items found."
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, formatMenuItem(item))
	}
	return strings.Join(lines, "\n")
}

func formatMenuItem(item storex.MenuItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s - Base: $%s", item.Name, item.Price)

	if len(item.Sizes) > 0 {
		parts := make([]string, 0, len(item.Sizes))
		for _, s := range item.Sizes {
			parts = append(parts, fmt.Sprintf("%s ($%s)", s.Name, s.Price))
		}
		b.WriteString(" | Sizes: " + strings.Join(parts, ", "))
	}

	if len(item.Deals) > 0 {
		parts := make([]string, 0, len(item.Deals))
		for _, d := range item.Deals {
			switch {
			case d.DiscountPercent > 0:
				parts = append(parts, fmt.Sprintf("%s (%s%% off)", d.Name, trimFloat(d.DiscountPercent)))
			case d.DiscountAmount > 0:
				parts = append(parts, fmt.Sprintf("%s ($%s off)", d.Name, d.DiscountAmount))
			default:
				parts = append(parts, d.Name)
			}
		}
		b.WriteString(" | Deals: " + strings.Join(parts, ", "))
	}

	if len(item.Servings) > 0 {
		parts := make([]string, 0, len(item.Servings))
		for _, s := range item.Servings {
			parts = append(parts, fmt.Sprintf("%s ($%s)", s.Name, item.Price.Scale(s.Multiplier)))
		}
		b.WriteString(" | Servings: " + strings.Join(parts, ", "))
	}

	if desc := strings.TrimSpace(item.Description); desc != "" {
		b.WriteString(": " + desc)
	}

	var diet []string
	if item.IsVegetarian {
		diet = append(diet, "Vegetarian")
	}
	if item.IsVegan {
		diet = append(diet, "Vegan")
	}
	if item.SpiceLevel > 0 {
		diet = append(diet, fmt.Sprintf("Spice Level: %d/5", item.SpiceLevel))
	}
	if len(diet) > 0 {
		b.WriteString(" (" + strings.Join(diet, ", ") + ")")
	}

	fmt.Fprintf(&b, " [ID: %s]", item.ID)
	return b.String()
}

func formatPlacedOrder(o *storex.Order, settings storex.Settings) string {
	var b strings.Builder
	b.WriteString("Order placed successfully.\n")
	fmt.Fprintf(&b, "Order ID: %s\n", o.ID)
	for _, item := range o.Items {
		fmt.Fprintf(&b, "- %d x %s @ $%s = $%s\n", item.Quantity, item.Name, item.UnitPrice, item.LineTotal())
	}
	fmt.Fprintf(&b, "Total: $%s\n", o.TotalPrice)
	fmt.Fprintf(&b, "Status: %s (awaiting payment verification by our team)\n\n", o.Status)
	fmt.Fprintf(&b, "Payment instructions:\n%s\n\n", settings.Payment())
	b.WriteString("Please submit your payment proof (transaction reference or a screenshot) so our team can confirm your order.")
	return b.String()
}

func formatOrderStatus(o *storex.Order, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order ID: %s\n", o.ID)
	fmt.Fprintf(&b, "Order Status: %s\n", o.Status)
	fmt.Fprintf(&b, "Payment Status: %s\n", o.PaymentStatus)
	fmt.Fprintf(&b, "Total: $%s\n", o.TotalPrice)
	fmt.Fprintf(&b, "Created: %s\n", o.CreatedAt.In(loc).Format(timeLayout))
	fmt.Fprintf(&b, "Last Updated: %s", o.UpdatedAt.In(loc).Format(timeLayout))
	if len(o.Items) > 0 {
		b.WriteString("\nItems:")
		for _, item := range o.Items {
			fmt.Fprintf(&b, "\n- %d x %s @ $%s", item.Quantity, item.Name, item.UnitPrice)
		}
	}
	return b.String()
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
