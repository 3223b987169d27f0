// Package mediapipe stitches the local audio device to an RTP session
// through the G.711 codec and resampler: one TX task
// (capture -> downsample -> encode -> send) and one RX task (receive ->
// decode -> upsample -> play), spawned after the 2xx INVITE is ACK'd and
// torn down with the dialog.
package mediapipe

import (
	"context"
	"log/slog"
	"sync"

	"github.com/duophone/duophone/internal/audio"
	"github.com/duophone/duophone/internal/g711"
	"github.com/duophone/duophone/internal/resample"
	"github.com/duophone/duophone/internal/rtpsession"
)

// rtpClockRate is the 8kHz clock G.711 RTP always runs at.
const rtpClockRate = 8000

// Pipeline owns the two media tasks bound to one dialog's lifetime. Neither
// task owns the audio streams or the RTP socket directly: both are held by
// the caller (the dialog) and released by Stop, which is what actually
// unblocks the tasks' in-flight reads/writes so they can exit.
type Pipeline struct {
	device      *audio.Device
	rtp         *rtpsession.Session
	payloadType uint8

	down resample.Converter
	up   resample.Converter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start spawns the TX and RX tasks. payloadType selects the codec: 0 for
// PCMU (u-law), 8 for PCMA (A-law); anything else falls back to PCMU.
func Start(device *audio.Device, rtp *rtpsession.Session, payloadType int) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		device:      device,
		rtp:         rtp,
		payloadType: uint8(payloadType),
		down:        resample.New(uint32(device.SampleRate), rtpClockRate),
		up:          resample.New(uint32(device.SampleRate), rtpClockRate),
		cancel:      cancel,
	}

	p.wg.Add(2)
	go p.txLoop(ctx)
	go p.rxLoop(ctx)
	return p
}

// Stop cancels both tasks, closes the RTP session and audio device (which
// is what unblocks any in-flight capture/playback/recv call), and waits for
// both tasks to return. Safe to call once; the dialog calls it exactly
// once on BYE or on any failure path that tears the dialog down.
func (p *Pipeline) Stop() {
	p.cancel()
	p.rtp.Close()
	p.device.Close()
	p.wg.Wait()
}

func (p *Pipeline) txLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := p.device.Capture()
		if err != nil {
			slog.Debug("mediapipe: tx task exiting", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		down := p.down.Downsample(frame.Samples)
		if len(down) == 0 {
			continue
		}
		payload := Encode(p.payloadType, down)

		if err := p.rtp.SendAudio(payload); err != nil {
			slog.Debug("mediapipe: tx task exiting on send error", "error", err)
			return
		}
	}
}

func (p *Pipeline) rxLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		payload, err := p.rtp.ReceiveAudio()
		if err != nil {
			slog.Debug("mediapipe: rx task exiting", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}

		samples := Decode(p.payloadType, payload)
		up := p.up.Upsample(samples)
		if len(up) == 0 {
			continue
		}
		up = padWithSilence(up, p.device.FramesPerChunk, p.payloadType)

		if err := p.device.Play(audio.Frame{Samples: up, SampleRate: p.device.SampleRate}); err != nil {
			slog.Debug("mediapipe: rx task exiting on playback error", "error", err)
			return
		}
	}
}

// Encode converts linear PCM samples to G.711 bytes for the given RTP
// payload type (8 = PCMA/A-law; anything else, including 0, is treated as
// PCMU/u-law).
func Encode(payloadType uint8, samples []int16) []byte {
	out := make([]byte, len(samples))
	if payloadType == 8 {
		for i, s := range samples {
			out[i] = g711.EncodeAlaw(s)
		}
		return out
	}
	for i, s := range samples {
		out[i] = g711.EncodeUlaw(s)
	}
	return out
}

// ulawSilenceByte and alawSilenceByte are the canonical G.711 encodings of
// silence for each law (not 0x00, which decodes to a loud click).
const (
	ulawSilenceByte byte = 0xFF
	alawSilenceByte byte = 0xD5
)

// padWithSilence pads a short decoded chunk out to wantLen using the decoded
// value of the codec's own silence byte, rather than raw PCM zero, so an
// underrun produces correct comfort noise instead of a click.
func padWithSilence(samples []int16, wantLen int, payloadType uint8) []int16 {
	if len(samples) >= wantLen {
		return samples
	}
	fill := g711.DecodeUlaw(ulawSilenceByte)
	if payloadType == 8 {
		fill = g711.DecodeAlaw(alawSilenceByte)
	}
	out := make([]int16, wantLen)
	copy(out, samples)
	for i := len(samples); i < wantLen; i++ {
		out[i] = fill
	}
	return out
}

// Decode converts G.711 bytes back to linear PCM samples for the given RTP
// payload type.
func Decode(payloadType uint8, payload []byte) []int16 {
	out := make([]int16, len(payload))
	if payloadType == 8 {
		for i, b := range payload {
			out[i] = g711.DecodeAlaw(b)
		}
		return out
	}
	for i, b := range payload {
		out[i] = g711.DecodeUlaw(b)
	}
	return out
}
