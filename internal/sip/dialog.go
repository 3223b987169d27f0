package sip

import "github.com/duophone/duophone/internal/rtpsession"

// DialogState is the per-call state machine.
type DialogState int

const (
	StateIdle DialogState = iota
	StateCalling
	StateRinging
	StateConfirmed
	StateTerminated
)

func (s DialogState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCalling:
		return "Calling"
	case StateRinging:
		return "Ringing"
	case StateConfirmed:
		return "Confirmed"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Dialog is a call's identifying tuple plus its mutable state. It is only
// ever mutated by the UserAgent controller that owns it. CSeq is a single
// per-dialog counter shared by every method, not a per-method counter.
type Dialog struct {
	CallID    string
	FromTag   string
	ToTag     string
	CSeq      int
	RemoteURI string
	LocalURI  string
	State     DialogState

	RTPPort    int
	RTPSession *rtpsession.Session
}
