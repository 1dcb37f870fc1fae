package history

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/unicode/norm"

	"digimenu/internal/domain"
)

const slipWidth = 40

// WriteSlip prints a plain-text receipt for entry. Amounts are shown with
// the ISO code of currencyCode and two decimals.
func WriteSlip(w io.Writer, entry domain.HistoryEntry, currencyCode string) error {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return fmt.Errorf("parsing currency %q: %w", currencyCode, err)
	}
	code := unit.String()
	rule := strings.Repeat("-", slipWidth)

	var b strings.Builder
	fmt.Fprintf(&b, "Order #%s\n", entry.OrderNumber)
	fmt.Fprintf(&b, "Table %d\n", entry.TableNumber)
	fmt.Fprintf(&b, "Placed %s\n", entry.CreatedAt.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Status %s\n", entry.Status)
	b.WriteString(rule + "\n")
	for _, l := range entry.Lines {
		name := norm.NFC.String(l.Name)
		if name == "" {
			name = fmt.Sprintf("Item %d", l.ItemID)
		}
		left := fmt.Sprintf("%d x %s", l.Quantity, name)
		right := code + " " + l.Subtotal().StringFixed(2)
		b.WriteString(padBetween(left, right) + "\n")
	}
	b.WriteString(rule + "\n")
	b.WriteString(padBetween("Total", code+" "+entry.Total.StringFixed(2)) + "\n")
	if entry.ServeCode != "" {
		fmt.Fprintf(&b, "Serve code %s\n", entry.ServeCode)
	}

	_, err = io.WriteString(w, b.String())
	return err
}

func padBetween(left, right string) string {
	gap := slipWidth - len([]rune(left)) - len([]rune(right))
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
