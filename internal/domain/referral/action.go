package referral

import "fmt"

// Action is the closed set of referral state-machine inputs. The unexported
// marker keeps the set sealed, so the service can switch over the concrete
// types exhaustively with no unknown-action fallthrough at runtime.
type Action interface {
	Name() string
	sealedAction()
}

// Accept: the target doctor takes over the case.
type Accept struct{}

// ReferBack: the target doctor hands the case back to the original doctor.
type ReferBack struct {
	Notes string
}

// Complete: the target doctor marks their part of the case done.
type Complete struct{}

// Reject: the target doctor declines a pending referral.
type Reject struct{}

func (Accept) Name() string    { return "accept" }
func (ReferBack) Name() string { return "refer_back" }
func (Complete) Name() string  { return "complete" }
func (Reject) Name() string    { return "reject" }

func (Accept) sealedAction()    {}
func (ReferBack) sealedAction() {}
func (Complete) sealedAction()  {}
func (Reject) sealedAction()    {}

// ParseAction maps a wire-level action string to its Action value.
// notes is only meaningful for refer_back.
func ParseAction(name, notes string) (Action, error) {
	switch name {
	case "accept":
		return Accept{}, nil
	case "refer_back":
		return ReferBack{Notes: notes}, nil
	case "complete":
		return Complete{}, nil
	case "reject":
		return Reject{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}
