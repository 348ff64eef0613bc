package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
)

// CommodityTotal aggregates the splits of one commodity.
type CommodityTotal struct {
	Commodity string
	Splits    int
	In        float64
	Out       float64
	Value     *money.Money // sum of rounded USD values, nil on unvalued runs
}

// Net returns inflow plus (negative) outflow.
func (t CommodityTotal) Net() float64 {
	return t.In + t.Out
}

// Summarize totals splits per commodity, sorted by commodity.
func Summarize(splits []Split) []CommodityTotal {
	byCommodity := map[string]*CommodityTotal{}
	for _, s := range splits {
		t, ok := byCommodity[s.Commodity]
		if !ok {
			t = &CommodityTotal{Commodity: s.Commodity}
			byCommodity[s.Commodity] = t
		}
		t.Splits++
		if s.Amount >= 0 {
			t.In += s.Amount
		} else {
			t.Out += s.Amount
		}
		if s.Value != nil {
			if t.Value == nil {
				t.Value = money.New(0, money.USD)
			}
			// Both operands are USD, so Add cannot fail.
			t.Value, _ = t.Value.Add(USD(*s.Value))
		}
	}

	totals := make([]CommodityTotal, 0, len(byCommodity))
	for _, t := range byCommodity {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Commodity < totals[j].Commodity
	})
	return totals
}

// SummaryMarkdown renders totals as a markdown report.
func SummaryMarkdown(address string, totals []CommodityTotal) string {
	withValue := false
	for _, t := range totals {
		if t.Value != nil {
			withValue = true
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Ledger summary\n\n`%s`\n\n", address)
	if len(totals) == 0 {
		b.WriteString("No splits.\n")
		return b.String()
	}

	b.WriteString("| Commodity | Splits | In | Out | Net |")
	if withValue {
		b.WriteString(" Value (USD) |")
	}
	b.WriteString("\n|---|---:|---:|---:|---:|")
	if withValue {
		b.WriteString("---:|")
	}
	b.WriteString("\n")

	for _, t := range totals {
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s |",
			t.Commodity, t.Splits, formatAmount(t.In), formatAmount(t.Out), formatAmount(t.Net()))
		if withValue {
			cell := ""
			if t.Value != nil {
				cell = t.Value.Display()
			}
			fmt.Fprintf(&b, " %s |", cell)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSummary formats markdown for a terminal.
func RenderSummary(markdown string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render summary: %w", err)
	}
	return out, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
