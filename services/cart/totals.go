package cart

// Summarize derives line totals, subtotal, tax and total from a snapshot.
// It has no side effects and is recomputed for every read.
func Summarize(items []Item, taxRate float64) Totals {
	t := Totals{
		Lines:   make([]Line, 0, len(items)),
		TaxRate: taxRate,
	}
	for _, item := range items {
		line := item.Price * float64(item.Quantity)
		t.Lines = append(t.Lines, Line{Item: item, LineTotal: line})
		t.Subtotal += line
		t.Count += item.Quantity
	}
	t.Tax = t.Subtotal * taxRate
	t.Total = t.Subtotal + t.Tax
	return t
}
