package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jredh-dev/foodloop/pkg/models"
)

// Narrator turns ranked demand totals into a short forecast for farmers.
type Narrator struct {
	gen     Generator
	model   string
	timeout time.Duration
}

// NewNarrator creates a forecast narrator.
func NewNarrator(gen Generator, model string, timeout time.Duration) *Narrator {
	return &Narrator{gen: gen, model: model, timeout: timeout}
}

// Forecast returns the model's narrative for the ranked totals in pincode.
func (n *Narrator) Forecast(ctx context.Context, pincode string, top []models.DemandTotal) (string, error) {
	text, err := call(ctx, n.gen, "forecast", n.model, forecastPrompt(pincode, top), n.timeout)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty forecast", models.ErrOracleUnavailable)
	}
	return text, nil
}

func forecastPrompt(pincode string, top []models.DemandTotal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Market data from pincode %s over the relevant period:\n", pincode)
	if len(top) == 0 {
		b.WriteString("No specific food item data available in the selected period.\n")
	}
	for _, t := range top {
		fmt.Fprintf(&b, "- %s: %skg\n", t.Name, t.TotalQuantity.StringFixed(1))
	}
	summary := b.String()

	return fmt.Sprintf("Analyze the following market data from a specific region (pincode %s):\n%s"+
		"Provide a very brief insight into what this data indicates about local demand and a simple "+
		"forecast or suggestion for farmers in this region regarding these top items. "+
		"Keep it concise, a paragraph or a few bullet points.\n", pincode, summary)
}
