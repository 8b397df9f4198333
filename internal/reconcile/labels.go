package reconcile

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Labels are the totals formatted for the shop counter.
type Labels struct {
	Weight string `json:"weight"`
	Value  string `json:"value"`
}

// FormatTotals renders totals as "loaded / ordered" pairs using the number
// conventions of tag, e.g. "17,000kg / 25,000kg" for Italian.
func FormatTotals(t Totals, tag language.Tag) Labels {
	p := message.NewPrinter(tag)
	return Labels{
		Weight: p.Sprintf("%.3fkg / %.3fkg", t.Loaded.InexactFloat64(), t.Ordered.InexactFloat64()),
		Value:  p.Sprintf("€ %.2f / € %.2f", t.LoadedValue.InexactFloat64(), t.OrderedValue.InexactFloat64()),
	}
}
