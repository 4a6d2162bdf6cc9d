package stock

// Level is the stock counter pair for one variant.
type Level struct {
	VariantID string `json:"variantId"`
	Total     int    `json:"totalStock"`
	Reserved  int    `json:"reservedStock"`
}

func (l Level) Available() int {
	return l.Total - l.Reserved
}
