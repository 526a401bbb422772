package delegation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names the kind of an Event.
type EventKind string

const (
	KindDelegateChanged EventKind = "delegate_changed"
	KindVotesChanged    EventKind = "votes_changed"
)

// Event describes a delegation change or a change in a delegate's weight.
//
// For KindDelegateChanged, Delegator, FromDelegate and ToDelegate are set;
// a nil delegate means "none". For KindVotesChanged, Delegate,
// PreviousWeight and NewWeight are set.
type Event struct {
	Kind  EventKind
	Block uint64

	Delegator    common.Address
	FromDelegate *common.Address
	ToDelegate   *common.Address

	Delegate       common.Address
	PreviousWeight *big.Int
	NewWeight      *big.Int
}

// EventFunc receives events emitted by a Tracker. It is called while the
// tracker's lock is held and must not call back into the tracker.
type EventFunc func(Event)

type hexOrNone struct{ a *common.Address }

func (h hexOrNone) String() string {
	if h.a == nil {
		return "none"
	}
	return h.a.Hex()
}

func optionalHex(a *common.Address) hexOrNone { return hexOrNone{a} }
