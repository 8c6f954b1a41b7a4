package models

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Number     int   `json:"number"`
	Size       int   `json:"size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPage assembles a page, deriving the page count from the total.
func NewPage[T any](items []T, number, size int, total int64) Page[T] {
	pages := int(total) / size
	if int(total)%size != 0 {
		pages++
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Number:     number,
		Size:       size,
		TotalItems: total,
		TotalPages: pages,
	}
}
