package orders

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
	StatusRefunded   Status = "refunded"
)

// transitions lists every legal move. A status with no entry is terminal.
// refunded is only reached through payment reconciliation, never requested directly.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusProcessing, StatusCompleted, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCompleted, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled, StatusReturned},
	StatusReturned:   {StatusCancelled, StatusRefunded},
	StatusCancelled:  {StatusRefunded},
}

// requestable is the set of targets accepted by the status endpoint.
var requestable = map[Status]struct{}{
	StatusPending:    {},
	StatusConfirmed:  {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusReturned:   {},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusCompleted,
		StatusCancelled, StatusReturned, StatusRefunded:
		return true
	}
	return false
}

// Requestable reports whether s may be asked for through a status update.
func (s Status) Requestable() bool {
	_, ok := requestable[s]
	return ok
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether an order in from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in s may be cancelled.
func Cancellable(s Status) bool {
	return CanTransition(s, StatusCancelled)
}
