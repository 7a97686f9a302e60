// Package grid maps a console cell index to its column and row.
package grid

// GetGridCoords returns the column and row of cell index in a grid that is
// cols cells wide.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}
