package orders

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// validNext maps from -> to -> relationships allowed to drive the move.
var validNext = map[Status]map[Status]Relation{
	StatusPending: {
		StatusShipped:   RelSeller,
		StatusCancelled: RelSeller | RelAdmin,
	},
	StatusShipped: {
		StatusCompleted: RelBuyer | RelAdmin,
		StatusCancelled: RelAdmin,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validNext[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	return st, nil
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func CanTransition(from, to Status) bool {
	_, ok := validNext[from][to]
	return ok
}

// Transition decides whether rel may move an order from -> to. A pair that is
// not in the table is an IllegalTransition no matter who asks; a listed pair
// requested by the wrong party is Forbidden.
func Transition(from, to Status, rel Relation, role Role) error {
	allowed, ok := validNext[from][to]
	if !ok {
		return &TransitionError{From: from, To: to, Role: role, err: ErrIllegalTransition}
	}
	if rel&allowed == 0 {
		return &TransitionError{From: from, To: to, Role: role, err: ErrForbidden}
	}
	return nil
}

// restocksOnTransition reports whether moving to `to` returns the ordered
// quantities to the catalog. Only a cancellation before shipment does.
func restocksOnTransition(from, to Status) bool {
	return from == StatusPending && to == StatusCancelled
}
