package resource

// Handle is an opaque reference to a value in a Table. The low 32 bits
// select a slot, bits 32-47 carry the slot's generation, so a handle goes
// stale for good once its value is dropped, even if the slot is reused.
// The top 16 bits name the arena that issued it, so a handle presented to
// another table is rejected. Handle 0 is reserved and always invalid.
type Handle uint64

func makeHandle(arena uint16, slot uint32, gen uint16) Handle {
	return Handle(uint64(arena)<<48 | uint64(gen)<<32 | uint64(slot+1))
}

func (h Handle) slot() (uint32, bool) {
	s := uint32(h)
	if s == 0 {
		return 0, false
	}
	return s - 1, true
}

func (h Handle) generation() uint16 {
	return uint16(h >> 32)
}

func (h Handle) arena() uint16 {
	return uint16(h >> 48)
}

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow_returned"
	}
	return "unknown"
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Backend provides the underlying storage mechanism for resources.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(typeID uint32, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop removes a resource. It fails for stale handles and for
	// handles with outstanding borrows.
	Drop(handle Handle) (any, error)

	// Close releases all resources held by the backend.
	Close() error
}

// Dropper is optionally implemented by resource values that need cleanup
// when a table is closed with the value still in it.
type Dropper interface {
	Drop() error
}
