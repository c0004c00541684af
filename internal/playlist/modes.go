package playlist

// TriState is the merge request for one mode field.
type TriState uint8

const (
	Leave TriState = iota
	Set
	Unset
	Toggle
)

// Apply merges a TriState request into a current boolean field value.
func (t TriState) Apply(current bool) bool {
	switch t {
	case Set:
		return true
	case Unset:
		return false
	case Toggle:
		return !current
	default: // Leave
		return current
	}
}

// Modes holds the three independent playback-mode toggles.
type Modes struct {
	RepeatOne bool
	RepeatAll bool
	Consume   bool
}

// ModeRequest carries one merge request per field, as sent by the Mode
// command.
type ModeRequest struct {
	RepeatOne TriState
	RepeatAll TriState
	Consume   TriState
}

// Merge applies req to m in place. Merge is idempotent when req is Leave
// for all three fields.
func (m *Modes) Merge(req ModeRequest) {
	m.RepeatOne = req.RepeatOne.Apply(m.RepeatOne)
	m.RepeatAll = req.RepeatAll.Apply(m.RepeatAll)
	m.Consume = req.Consume.Apply(m.Consume)
}
