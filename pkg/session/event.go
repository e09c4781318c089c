package session

// Event is one unit of the normalized downstream stream. Exactly one of the
// fields is set.
type Event struct {
	// T is a text delta.
	T string `json:"t,omitempty"`

	// Set is a state patch (model name, usage, stop reason, retry notices).
	Set map[string]any `json:"set,omitempty"`

	// CG is a control marker; "start" signals that generation has begun.
	CG string `json:"cg,omitempty"`
}

// ControlStart is the CG value of the first event of every stream.
const ControlStart = "start"
