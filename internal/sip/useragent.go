package sip

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/duophone/duophone/internal/audio"
	"github.com/duophone/duophone/internal/config"
	"github.com/duophone/duophone/internal/mediapipe"
	"github.com/duophone/duophone/internal/rtpsession"
)

const (
	registerExpires = 3600
	registerTimeout = 10 * time.Second
	inviteTimeout   = 30 * time.Second
	byeTimeout      = 5 * time.Second

	audioSampleRate     = 48000
	audioFramesPerChunk = audioSampleRate / 50 // 20ms at 48kHz
)

// EventKind tags an Event with which field of the boundary contract it
// carries.
type EventKind int

const (
	EventInitialized EventKind = iota
	EventRegistrationState
	EventCallState
	EventError
)

// Call-state strings pushed to the control collaborator.
const (
	CallOutgoing   = "OUTGOING"
	CallRinging    = "RINGING"
	CallActive     = "ACTIVE"
	CallTerminated = "TERMINATED"
)

// Event is one item on the UserAgent's event stream, the boundary a GUI
// or other control surface subscribes to.
type Event struct {
	Kind       EventKind
	Registered bool
	CallState  string
	Err        error
}

// UserAgent is the process-wide softphone instance. Fields
// that more than one goroutine can touch sit behind mu; the lock is held
// only to read or update those scalar fields and is always released before
// any network I/O or wait.
type UserAgent struct {
	cfg *config.Config

	mu         sync.Mutex
	transport  *Transport
	localAddr  string
	registered bool
	dialog     *Dialog
	pipeline   *mediapipe.Pipeline
	device     *audio.Device

	portAlloc *rtpsession.PortAllocator
	events    chan Event
}

// New builds a UserAgent from cfg. It does not touch the network; call
// Init to bring up the transport.
func New(cfg *config.Config) (*UserAgent, error) {
	portAlloc, err := rtpsession.NewPortAllocator(cfg.RTPPortMin, cfg.RTPPortMax)
	if err != nil {
		return nil, fmt.Errorf("sip: building RTP port allocator: %w", err)
	}
	return &UserAgent{
		cfg:       cfg,
		portAlloc: portAlloc,
		events:    make(chan Event, 32),
	}, nil
}

// Events returns the UserAgent's event stream. Events are dropped if the
// channel's buffer is full rather than blocking the caller.
func (ua *UserAgent) Events() <-chan Event {
	return ua.events
}

func (ua *UserAgent) emit(e Event) {
	select {
	case ua.events <- e:
	default:
		slog.Warn("sip: event dropped, subscriber not keeping up", "kind", e.Kind)
	}
}

// Init idempotently brings up the SIP transport: a single UDP socket bound
// to 0.0.0.0:<local-sip-port>.
func (ua *UserAgent) Init() error {
	ua.mu.Lock()
	if ua.transport != nil {
		ua.mu.Unlock()
		return nil
	}
	ua.mu.Unlock()

	transport, err := NewTransport(ua.cfg.LocalSIPPort)
	if err != nil {
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	ua.mu.Lock()
	if ua.transport != nil {
		// Lost an Init race; keep the winner's transport.
		ua.mu.Unlock()
		transport.Close()
		return nil
	}
	ua.transport = transport
	ua.mu.Unlock()

	slog.Info("sip: transport initialized", "local_port", transport.LocalPort())
	ua.emit(Event{Kind: EventInitialized})
	return nil
}

// snapshotTransport returns the current transport, or ConfigMissing if
// Init has not run yet.
func (ua *UserAgent) snapshotTransport() (*Transport, error) {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	if ua.transport == nil {
		return nil, newErr(ConfigMissing, "Init was not called")
	}
	return ua.transport, nil
}

// Register performs a REGISTER transaction against server (host[:port])
// for the given account. It blocks until the transaction completes or
// errors. On success, Registered() becomes true.
func (ua *UserAgent) Register(server, user, password string) error {
	transport, err := ua.snapshotTransport()
	if err != nil {
		return err
	}

	dest, err := ResolveServer(server)
	if err != nil {
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	localIP := ua.cfg.LocalIP
	if localIP == "" {
		localIP, err = LocalAdvertisedAddr(dest)
		if err != nil {
			ua.emit(Event{Kind: EventError, Err: err})
			return err
		}
	}
	localAddr := fmt.Sprintf("%s:%d", localIP, transport.LocalPort())

	req := BuildRegister(RegisterParams{
		Server:      server,
		LocalAddr:   localAddr,
		User:        user,
		DisplayName: ua.cfg.DisplayName,
		CallID:      NewCallID(),
		FromTag:     NewTag(),
		CSeq:        1,
		Expires:     registerExpires,
		Branch:      NewBranch(),
	})

	result, err := SendWithAuth(transport, dest, req, "REGISTER", "sip:"+server,
		Credentials{Username: user, Password: password}, registerTimeout)
	if err != nil {
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	if result.Response.StatusCode != 200 {
		rejErr := newErr(RemoteRejection, "register failed: %s", result.Response.StatusLine())
		ua.emit(Event{Kind: EventError, Err: rejErr})
		return rejErr
	}

	ua.mu.Lock()
	ua.registered = true
	ua.localAddr = localAddr
	ua.mu.Unlock()

	slog.Info("sip: registered", "server", server, "user", user)
	ua.emit(Event{Kind: EventRegistrationState, Registered: true})
	return nil
}

// Unregister sends REGISTER with Expires: 0. A second call when already
// unregistered is a no-op.
func (ua *UserAgent) Unregister(server, user, password string) error {
	transport, err := ua.snapshotTransport()
	if err != nil {
		return err
	}

	ua.mu.Lock()
	wasRegistered := ua.registered
	localAddr := ua.localAddr
	ua.mu.Unlock()
	if !wasRegistered {
		return nil
	}

	dest, err := ResolveServer(server)
	if err != nil {
		return err
	}

	req := BuildRegister(RegisterParams{
		Server:      server,
		LocalAddr:   localAddr,
		User:        user,
		DisplayName: ua.cfg.DisplayName,
		CallID:      NewCallID(),
		FromTag:     NewTag(),
		CSeq:        1,
		Expires:     0,
		Branch:      NewBranch(),
	})

	result, err := SendWithAuth(transport, dest, req, "REGISTER", "sip:"+server,
		Credentials{Username: user, Password: password}, byeTimeout)

	ua.mu.Lock()
	ua.registered = false
	ua.mu.Unlock()
	ua.emit(Event{Kind: EventRegistrationState, Registered: false})

	if err != nil {
		// Absence of a response to the un-register is not an error:
		// the state is cleared either way.
		if e, ok := err.(*Error); ok && e.Kind == Timeout {
			return nil
		}
		return err
	}
	if result.Response.StatusCode != 200 {
		return newErr(RemoteRejection, "unregister failed: %s", result.Response.StatusLine())
	}
	return nil
}

// Registered reports whether the UA currently holds a registration.
func (ua *UserAgent) Registered() bool {
	ua.mu.Lock()
	defer ua.mu.Unlock()
	return ua.registered
}
