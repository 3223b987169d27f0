package sip

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/duophone/duophone/internal/audio"
	"github.com/duophone/duophone/internal/digestauth"
	"github.com/duophone/duophone/internal/mediapipe"
	"github.com/duophone/duophone/internal/rtpsession"
	"github.com/duophone/duophone/internal/sdp"
)

// sdpSessionID is the o= session identifier for outgoing offers: the
// current UNIX second.
func sdpSessionID() int64 { return time.Now().Unix() }

// MakeCall places an outbound call to number, blocking until the dialog
// reaches Confirmed (call answered), Terminated (rejected), or the INVITE
// transaction times out.
func (ua *UserAgent) MakeCall(number string) error {
	transport, err := ua.snapshotTransport()
	if err != nil {
		return err
	}

	ua.mu.Lock()
	if !ua.registered {
		ua.mu.Unlock()
		return newErr(ConfigMissing, "MakeCall requires an active registration")
	}
	if ua.dialog != nil {
		ua.mu.Unlock()
		return newErr(ConfigMissing, "a call is already active")
	}
	server := ua.cfg.RegistrarServer()
	user := ua.cfg.AccountUser
	password := ua.cfg.AccountPass
	localAddr := ua.localAddr
	ua.mu.Unlock()

	destURI, err := ResolveDestination(number, server)
	if err != nil {
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	dest, err := ResolveServer(server)
	if err != nil {
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	rtpPort, err := ua.portAlloc.Allocate()
	if err != nil {
		err = newErr(IOError, "allocating RTP port: %w", err)
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	localIP, _, splitErr := net.SplitHostPort(localAddr)
	if splitErr != nil {
		ua.portAlloc.Release(rtpPort)
		err := newErr(ProtocolError, "parsing advertised address %q: %w", localAddr, splitErr)
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	offer := sdp.Build(sdp.Offer{LocalIP: localIP, RTPPort: rtpPort, SessionID: sdpSessionID()})

	dialog := &Dialog{
		CallID:    NewCallID(),
		FromTag:   NewTag(),
		RemoteURI: destURI,
		LocalURI:  fmt.Sprintf("sip:%s@%s", user, server),
		CSeq:      1,
		State:     StateCalling,
		RTPPort:   rtpPort,
	}
	ua.mu.Lock()
	ua.dialog = dialog
	ua.mu.Unlock()
	ua.emit(Event{Kind: EventCallState, CallState: CallOutgoing})

	req := BuildInvite(InviteParams{
		DestURI:     destURI,
		Server:      server,
		LocalAddr:   localAddr,
		User:        user,
		DisplayName: ua.cfg.DisplayName,
		CallID:      dialog.CallID,
		FromTag:     dialog.FromTag,
		CSeq:        dialog.CSeq,
		Branch:      NewBranch(),
		SDP:         offer,
	})

	result, err := ua.sendInviteAndAwait(transport, dest, req, destURI, user, password, dialog)
	if err != nil {
		ua.portAlloc.Release(rtpPort)
		ua.clearDialog()
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	dialog.CSeq = result.CSeq
	resp := result.Response

	if resp.StatusCode >= 300 {
		ua.portAlloc.Release(rtpPort)
		ua.clearDialog()
		rejErr := newErr(RemoteRejection, "call failed: %s", resp.StatusLine())
		ua.emit(Event{Kind: EventCallState, CallState: CallTerminated})
		ua.emit(Event{Kind: EventError, Err: rejErr})
		return rejErr
	}
	if resp.StatusCode != 200 {
		ua.portAlloc.Release(rtpPort)
		ua.clearDialog()
		err := newErr(ProtocolError, "unexpected final response to INVITE: %s", resp.StatusLine())
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	toTag := ExtractToTag(resp.Raw)
	dialog.ToTag = toTag
	dialog.State = StateConfirmed

	ackReq := BuildAck(AckParams{
		DestURI:     destURI,
		Server:      server,
		LocalAddr:   localAddr,
		User:        user,
		DisplayName: ua.cfg.DisplayName,
		CallID:      dialog.CallID,
		FromTag:     dialog.FromTag,
		ToTag:       toTag,
		CSeq:        dialog.CSeq,
		Branch:      NewBranch(),
	})
	if err := transport.Send(ackReq, dest); err != nil {
		slog.Warn("sip: failed to send ACK", "error", err)
	}

	remote, err := sdp.Parse(resp.Body)
	if err != nil {
		ua.portAlloc.Release(rtpPort)
		ua.clearDialog()
		err := newErr(ProtocolError, "parsing answer SDP: %w", err)
		ua.emit(Event{Kind: EventError, Err: err})
		return err
	}

	if startErr := ua.startMedia(dialog, remote); startErr != nil {
		slog.Error("sip: failed to start media, call has no audio", "error", startErr)
	}

	ua.emit(Event{Kind: EventCallState, CallState: CallActive})
	slog.Info("sip: call confirmed", "call_id", dialog.CallID, "remote", destURI)
	return nil
}

// sendInviteAndAwait runs the INVITE transaction. It mirrors
// SendWithAuth's send/await/retry shape but also tracks 180/183 Ringing
// transitions against dialog as they arrive, which the generic REGISTER/
// BYE transaction in transaction.go has no dialog to report against.
func (ua *UserAgent) sendInviteAndAwait(transport *Transport, dest *net.UDPAddr, req, uri, user, password string, dialog *Dialog) (*TransactionResult, error) {
	if err := transport.Send(req, dest); err != nil {
		return nil, err
	}

	resp, err := ua.recvFinalTrackingRinging(transport, dialog, inviteTimeout)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 401 && resp.StatusCode != 407 {
		return &TransactionResult{Response: resp, CSeq: 1}, nil
	}

	challengeHeader, authzHeader := "www-authenticate", "Authorization"
	if resp.StatusCode == 407 {
		challengeHeader, authzHeader = "proxy-authenticate", "Proxy-Authorization"
	}
	headerValue, ok := resp.Header(challengeHeader)
	if !ok {
		return nil, newErr(AuthFailure, "received %d with no %s header", resp.StatusCode, challengeHeader)
	}
	chal, err := digestauth.ParseChallenge(headerValue)
	if err != nil {
		return nil, &Error{Kind: AuthFailure, Err: err}
	}
	authValue, err := digestauth.Compute(chal, digestauth.Credentials{
		Method: "INVITE", URI: uri, Username: user, Password: password,
	})
	if err != nil {
		return nil, &Error{Kind: AuthFailure, Err: err}
	}

	retry, err := rebuildForAuth(req, "INVITE", authzHeader, authValue)
	if err != nil {
		return nil, newErr(ProtocolError, "rebuilding INVITE for auth retry: %w", err)
	}
	if err := transport.Send(retry, dest); err != nil {
		return nil, err
	}

	resp2, err := ua.recvFinalTrackingRinging(transport, dialog, inviteTimeout)
	if err != nil {
		return nil, err
	}
	if resp2.StatusCode == 401 || resp2.StatusCode == 407 {
		return nil, newErr(AuthFailure, "INVITE challenged again after auth retry (%s)", resp2.StatusLine())
	}
	return &TransactionResult{Response: resp2, CSeq: 2}, nil
}

// recvFinalTrackingRinging loops Transport.Recv like recvFinal, but also
// transitions dialog to Ringing and emits a call-state event on 180/183.
func (ua *UserAgent) recvFinalTrackingRinging(transport *Transport, dialog *Dialog, timeout time.Duration) (*Response, error) {
	for {
		resp, err := transport.Recv(timeout)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == 180 || resp.StatusCode == 183 {
			dialog.State = StateRinging
			ua.emit(Event{Kind: EventCallState, CallState: CallRinging})
			continue
		}
		if resp.IsProvisional() {
			continue
		}
		return resp, nil
	}
}

func (ua *UserAgent) clearDialog() {
	ua.mu.Lock()
	ua.dialog = nil
	ua.mu.Unlock()
}

func (ua *UserAgent) startMedia(dialog *Dialog, remote sdp.Remote) error {
	device, err := audio.Open(audioSampleRate, audioFramesPerChunk)
	if err != nil {
		return fmt.Errorf("opening audio device: %w", err)
	}

	rtp, err := rtpsession.New(dialog.RTPPort, fmt.Sprintf("%s:%d", remote.Address, remote.Port), uint8(remote.PayloadType))
	if err != nil {
		device.Close()
		return fmt.Errorf("creating RTP session: %w", err)
	}

	pipeline := mediapipe.Start(device, rtp, remote.PayloadType)

	ua.mu.Lock()
	ua.device = device
	dialog.RTPSession = rtp
	ua.pipeline = pipeline
	ua.mu.Unlock()
	return nil
}

// AnswerCall accepts an incoming INVITE. Not implemented: this UA never
// runs a receive loop outside an active transaction, so there is no
// inbound INVITE to answer.
func (ua *UserAgent) AnswerCall() error {
	slog.Info("sip: answer_call invoked but inbound calls are not supported")
	return newErr(ConfigMissing, "answer_call: inbound INVITE handling is not implemented")
}

// HangupCall terminates the active dialog: aborts the media tasks, drops
// the RTP session, sends BYE, and clears the dialog regardless of whether
// a 200 OK arrives within the timeout.
func (ua *UserAgent) HangupCall() error {
	transport, err := ua.snapshotTransport()
	if err != nil {
		return err
	}

	ua.mu.Lock()
	dialog := ua.dialog
	pipeline := ua.pipeline
	server := ua.cfg.RegistrarServer()
	user := ua.cfg.AccountUser
	localAddr := ua.localAddr
	ua.mu.Unlock()

	if dialog == nil {
		return newErr(ConfigMissing, "no active call")
	}
	if dialog.State == StateTerminated {
		ua.clearDialog()
		return nil
	}

	if pipeline != nil {
		pipeline.Stop()
	}
	ua.portAlloc.Release(dialog.RTPPort)

	dest, err := ResolveServer(server)
	if err != nil {
		ua.clearDialog()
		return err
	}

	dialog.CSeq++
	req := BuildBye(ByeParams{
		DestURI:     dialog.RemoteURI,
		Server:      server,
		LocalAddr:   localAddr,
		User:        user,
		DisplayName: ua.cfg.DisplayName,
		CallID:      dialog.CallID,
		FromTag:     dialog.FromTag,
		ToTag:       dialog.ToTag,
		CSeq:        dialog.CSeq,
		Branch:      NewBranch(),
	})

	if sendErr := transport.Send(req, dest); sendErr == nil {
		if resp, recvErr := recvFinal(transport, byeTimeout); recvErr == nil {
			slog.Info("sip: bye response", "status", resp.StatusLine())
		} else {
			slog.Debug("sip: no response to BYE, terminating anyway", "error", recvErr)
		}
	} else {
		slog.Debug("sip: failed to send BYE, terminating anyway", "error", sendErr)
	}

	dialog.State = StateTerminated
	ua.clearDialog()
	ua.mu.Lock()
	ua.device = nil
	ua.pipeline = nil
	ua.mu.Unlock()

	ua.emit(Event{Kind: EventCallState, CallState: CallTerminated})
	slog.Info("sip: call ended", "call_id", dialog.CallID)
	return nil
}
