package payments

type Status string

const (
	StatusInitialized Status = "initialized"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusInitialized: {StatusProcessing: true, StatusFailed: true, StatusCancelled: true},
	StatusProcessing:  {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
	StatusCompleted:   {StatusRefunded: true},
	StatusFailed:      {StatusProcessing: true}, // explicit retry path
	StatusCancelled:   {},
	StatusRefunded:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal states accept no further transitions.
func Terminal(s Status) bool { return len(validNext[s]) == 0 }

// Open reports whether a payment in this state still counts against the
// one-open-payment-per-order invariant. failed does not: it is the state a
// retry starts over from.
func Open(s Status) bool {
	switch s {
	case StatusInitialized, StatusProcessing, StatusCompleted:
		return true
	default:
		return false
	}
}
