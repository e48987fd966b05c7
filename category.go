package lal

// CategoryFilter decides, per producer call, whether a message, region, or
// source-location event is worth encoding at all. It is consulted before any
// buffer space is reserved, so a filter that rejects a call costs nothing
// beyond the interface dispatch. This is the runtime analog of the C++
// original's consteval category-filter concepts, which selected behavior at
// compile time; Go has no equivalent static dispatch for this, so the choice
// is made once per call through an ordinary interface.
type CategoryFilter interface {
	// Message reports whether a message of the given category should be
	// encoded.
	Message(category uint32) bool
	// Region reports whether region-start/region-end events should be
	// encoded at all.
	Region() bool
	// Source reports whether source-location events should be encoded.
	Source() bool
}

// FilterAll discards every message, region, and source-location event.
type FilterAll struct{}

func (FilterAll) Message(uint32) bool { return false }
func (FilterAll) Region() bool        { return false }
func (FilterAll) Source() bool        { return false }

// FilterNone admits every message, region, and source-location event.
type FilterNone struct{}

func (FilterNone) Message(uint32) bool { return true }
func (FilterNone) Region() bool        { return true }
func (FilterNone) Source() bool        { return true }

// FilterSeverity admits messages whose category is numerically at or above
// Minimum, and always admits regions and source-location events.
type FilterSeverity struct {
	Minimum uint32
}

func (f FilterSeverity) Message(category uint32) bool { return category >= f.Minimum }
func (FilterSeverity) Region() bool                   { return true }
func (FilterSeverity) Source() bool                   { return true }
