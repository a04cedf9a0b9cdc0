package orders

import "fmt"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// Actor is an authenticated caller as resolved by the auth collaborator.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Relation is the actor's standing toward one order.
type Relation uint8

const (
	RelNone  Relation = 0
	RelBuyer Relation = 1 << iota
	RelSeller
	RelAdmin
)

func (r Relation) String() string {
	switch r {
	case RelBuyer:
		return "owner-buyer"
	case RelSeller:
		return "owner-seller"
	case RelAdmin:
		return "admin"
	}
	return "none"
}

// Gate answers read and transition questions for (actor, order). It holds no
// state, so every call re-derives the decision from its arguments.
type Gate struct{}

func (Gate) Relation(a Actor, o Order) Relation {
	switch a.Role {
	case RoleAdmin:
		return RelAdmin
	case RoleBuyer:
		if a.ID != "" && a.ID == o.BuyerID {
			return RelBuyer
		}
	case RoleSeller:
		if a.ID != "" && a.ID == o.SellerID {
			return RelSeller
		}
	}
	return RelNone
}

func (g Gate) CanRead(a Actor, o Order) error {
	if g.Relation(a, o) == RelNone {
		return fmt.Errorf("%w: %s %q may not read order %s", ErrForbidden, a.Role, a.ID, o.ID)
	}
	return nil
}

func (g Gate) CanTransition(a Actor, o Order, to Status) error {
	rel := g.Relation(a, o)
	if rel == RelNone {
		return fmt.Errorf("%w: %s %q has no access to order %s", ErrForbidden, a.Role, a.ID, o.ID)
	}
	return Transition(o.Status, to, rel, a.Role)
}
