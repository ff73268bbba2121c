package handle

// Kind is a class of native resource and the export that frees it.
type Kind struct {
	Name       string
	FreeExport string
}

// Resource kinds produced by the project library.
var (
	KindProject      = Kind{Name: "project", FreeExport: "gpr_project_free"}
	KindUnitProvider = Kind{Name: "unit_provider", FreeExport: "gpr_unit_provider_dec_ref"}
)

func (k Kind) String() string {
	return k.Name
}

// ID identifies a handle within its Manager. ID 0 is never issued.
type ID uint64

// EventType identifies a lifecycle notification.
type EventType uint8

const (
	EventWrapped EventType = iota
	EventReleased
	EventStringArrayFreed
	EventStringFreed
)

func (t EventType) String() string {
	switch t {
	case EventWrapped:
		return "wrapped"
	case EventReleased:
		return "released"
	case EventStringArrayFreed:
		return "string_array_freed"
	case EventStringFreed:
		return "string_freed"
	default:
		return "unknown"
	}
}

// Event describes a change in native ownership.
type Event struct {
	Kind Kind
	ID   ID
	Addr uint32
	Type EventType
	// Collected is set when a release was triggered by garbage collection.
	Collected bool
}

// Observer receives lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}
