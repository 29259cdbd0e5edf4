package orders

// Status is the persisted order status.
type Status string

// Order statuses
const (
	StatusPending    Status = "PENDING"
	StatusStored     Status = "STORED"
	StatusProcessing Status = "PROCESSING"
	StatusFulfilled  Status = "FULFILLED"
	StatusFailed     Status = "FAILED"
)

// forward lists the statuses reachable from each non-terminal status.
var forward = map[Status][]Status{
	StatusPending:    {StatusStored, StatusProcessing},
	StatusStored:     {StatusProcessing, StatusFulfilled, StatusFailed},
	StatusProcessing: {StatusFulfilled, StatusFailed},
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusFailed
}

// CanTransition reports whether an order in from may be written as to.
// Rewriting a terminal status onto itself is allowed so replays converge.
func CanTransition(from, to Status) bool {
	if from == to {
		return to.Terminal()
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// sourcesOf returns every status that may be written as to.
func sourcesOf(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusStored, StatusProcessing, StatusFulfilled, StatusFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
