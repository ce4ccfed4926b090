package cart

type Item struct {
	ID       int64   `json:"id"`
	Slug     string  `json:"slug"`
	Name     string  `json:"name"`
	Image    string  `json:"image"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Line struct {
	Item
	LineTotal float64 `json:"lineTotal"`
}

type Totals struct {
	Lines    []Line  `json:"lines"`
	Count    int     `json:"count"`
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
	TaxRate  float64 `json:"taxRate"`
}
