package utils

// InsertAt inserts item at the specified index, shifting the tail of the slice
// one position to the right. Order of the existing items is preserved.
// Index equal to len(items) appends.
func InsertAt[T any](items []T, index int, item T) []T {
	var zero T
	items = append(items, zero)
	copy(items[index+1:], items[index:])
	items[index] = item
	return items
}

// RemoveAt removes the item at the specified index, shifting the tail of the
// slice one position to the left. Unlike swap-removal the order of the
// remaining items is preserved, the vacated last slot is zeroed.
func RemoveAt[T any](items []T, index int) []T {
	var zero T
	copy(items[index:], items[index+1:])
	items[len(items)-1] = zero
	return items[:len(items)-1]
}
