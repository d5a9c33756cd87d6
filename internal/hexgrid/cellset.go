package hexgrid

// CellSet is an unordered set of cell identifiers.
type CellSet map[Cell]struct{}

// NewCellSet creates a set holding the given cells.
func NewCellSet(cells ...Cell) CellSet {
	set := make(CellSet, len(cells))
	for _, cell := range cells {
		set[cell] = struct{}{}
	}
	return set
}

// Add inserts a cell into the set.
func (s CellSet) Add(cell Cell) {
	s[cell] = struct{}{}
}

// Has reports whether the set contains the cell.
func (s CellSet) Has(cell Cell) bool {
	_, ok := s[cell]
	return ok
}

// Intersects reports whether the two sets share at least one cell.
func (s CellSet) Intersects(other CellSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for cell := range small {
		if large.Has(cell) {
			return true
		}
	}
	return false
}

// Intersection returns the cells present in both sets.
func (s CellSet) Intersection(other CellSet) CellSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	result := make(CellSet)
	for cell := range small {
		if large.Has(cell) {
			result.Add(cell)
		}
	}
	return result
}

// Union returns a new set holding the cells of both sets.
func (s CellSet) Union(other CellSet) CellSet {
	result := make(CellSet, len(s)+len(other))
	for cell := range s {
		result.Add(cell)
	}
	for cell := range other {
		result.Add(cell)
	}
	return result
}

// Clone returns an independent copy of the set.
func (s CellSet) Clone() CellSet {
	result := make(CellSet, len(s))
	for cell := range s {
		result.Add(cell)
	}
	return result
}

// Strings returns the cell identifiers as a string slice. Order is not
// defined.
func (s CellSet) Strings() []string {
	out := make([]string, 0, len(s))
	for cell := range s {
		out = append(out, string(cell))
	}
	return out
}

// CellSetFromStrings builds a set from raw identifiers, skipping empties.
func CellSetFromStrings(raw []string) CellSet {
	set := make(CellSet, len(raw))
	for _, value := range raw {
		if value == "" {
			continue
		}
		set.Add(Cell(value))
	}
	return set
}
