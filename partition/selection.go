package partition

// Selection represents the streams a Planner should cover.
//
// This is a sealed interface: the only variants are All and ByIDs.
type Selection interface {
	isSelection()
}

// All selects all the streams known by the Planner's Catalog.
type All struct{}

func (All) isSelection() {}

// ByIDs selects the streams with the given ids.
type ByIDs []string

func (ByIDs) isSelection() {}
