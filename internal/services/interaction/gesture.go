package interaction

// Kind identifies the active gesture.
type Kind int

const (
	Idle Kind = iota
	Undecided
	TimeDrag
	ValueDrag
	CursorDrag
)

func (k Kind) String() string {
	switch k {
	case Undecided:
		return "undecided"
	case TimeDrag:
		return "time_drag"
	case ValueDrag:
		return "value_drag"
	case CursorDrag:
		return "cursor_drag"
	default:
		return "idle"
	}
}

// gesture is the closed set of drag states. Each variant carries only the
// data its handling needs.
type gesture interface {
	kind() Kind
}

// anchor is where a drag started.
type anchor struct {
	surface Surface
	startX  float64
	startY  float64
}

type undecidedDrag struct {
	anchor
	// inert is set once the threshold was crossed without a drag resolving.
	inert bool
}

type timeDrag struct {
	anchor
	// applied is the total shift already sent to the window, in seconds.
	applied float64
}

type valueDrag struct {
	anchor
	lastY float64
}

type cursorDrag struct {
	anchor
	index int
}

func (*undecidedDrag) kind() Kind { return Undecided }
func (*timeDrag) kind() Kind      { return TimeDrag }
func (*valueDrag) kind() Kind     { return ValueDrag }
func (*cursorDrag) kind() Kind    { return CursorDrag }
