package tgui

import "fmt"

// Page is one window over a list. Index is 0-based.
type Page[T any] struct {
	Items   []T
	Index   int
	Pages   int
	HasPrev bool
	HasNext bool
}

// Paginate returns page index of items split into pages of size. An index
// past the end is clamped to the last page.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = 8
	}
	pages := max((len(items)+size-1)/size, 1)
	index = min(max(index, 0), pages-1)
	start := min(index*size, len(items))
	end := min(start+size, len(items))
	return Page[T]{
		Items:   items[start:end],
		Index:   index,
		Pages:   pages,
		HasPrev: index > 0,
		HasNext: end < len(items),
	}
}

// Label renders "Стр. 2/3".
func (p Page[T]) Label() string {
	return fmt.Sprintf("Стр. %d/%d", p.Index+1, p.Pages)
}
