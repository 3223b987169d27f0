// Package audio bridges the local microphone and speaker to the media
// pipeline using blocking PortAudio streams. A Device is opened for each
// call and closed when it ends; Init/Terminate bracket PortAudio's own
// lifecycle.
package audio

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// Frame is a chunk of mono linear PCM samples at SampleRate.
type Frame struct {
	Samples    []int16
	SampleRate int
}

// Device owns the input and output PortAudio streams for one call. Streams
// are opened mono when the host allows it; hosts that only expose a stereo
// device get a stereo stream with downmix on capture and duplication on
// playback, so callers always see mono frames.
type Device struct {
	SampleRate     int
	FramesPerChunk int

	in  *portaudio.Stream
	out *portaudio.Stream

	inChannels  int
	outChannels int

	inBuf  []int16
	outBuf []int16
}

// Init initializes the PortAudio library. Must be called once before any
// Device is opened, and paired with Terminate on shutdown.
func Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audio: initializing portaudio: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio library.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("audio: terminating portaudio: %w", err)
	}
	return nil
}

// Open opens the default input and output devices, logging the enumerated
// device list if either default is unavailable.
func Open(sampleRate, framesPerChunk int) (*Device, error) {
	d := &Device{
		SampleRate:     sampleRate,
		FramesPerChunk: framesPerChunk,
	}

	inDev, err := portaudio.DefaultInputDevice()
	if err != nil {
		logDeviceList("input")
		return nil, fmt.Errorf("audio: no default input device: %w", err)
	}
	outDev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		logDeviceList("output")
		return nil, fmt.Errorf("audio: no default output device: %w", err)
	}
	slog.Info("audio device selected", "input", inDev.Name, "output", outDev.Name)

	// Prefer a mono stream; fall back to stereo with downmix/duplication
	// for hosts whose device only opens with two channels.
	for _, channels := range []int{1, 2} {
		d.inBuf = make([]int16, framesPerChunk*channels)
		inParams := portaudio.LowLatencyParameters(inDev, nil)
		inParams.Input.Channels = channels
		inParams.SampleRate = float64(sampleRate)
		inParams.FramesPerBuffer = framesPerChunk
		in, openErr := portaudio.OpenStream(inParams, d.inBuf)
		if openErr != nil {
			err = openErr
			continue
		}
		d.in = in
		d.inChannels = channels
		err = nil
		break
	}
	if err != nil {
		return nil, fmt.Errorf("audio: opening input stream: %w", err)
	}
	if d.inChannels == 2 {
		slog.Info("audio capture opened stereo, downmixing to mono")
	}

	for _, channels := range []int{1, 2} {
		d.outBuf = make([]int16, framesPerChunk*channels)
		outParams := portaudio.LowLatencyParameters(nil, outDev)
		outParams.Output.Channels = channels
		outParams.SampleRate = float64(sampleRate)
		outParams.FramesPerBuffer = framesPerChunk
		out, openErr := portaudio.OpenStream(outParams, d.outBuf)
		if openErr != nil {
			err = openErr
			continue
		}
		d.out = out
		d.outChannels = channels
		err = nil
		break
	}
	if err != nil {
		d.in.Close()
		return nil, fmt.Errorf("audio: opening output stream: %w", err)
	}
	if d.outChannels == 2 {
		slog.Info("audio playback opened stereo, duplicating mono frames")
	}

	if err := d.in.Start(); err != nil {
		d.Close()
		return nil, fmt.Errorf("audio: starting input stream: %w", err)
	}
	if err := d.out.Start(); err != nil {
		d.Close()
		return nil, fmt.Errorf("audio: starting output stream: %w", err)
	}

	return d, nil
}

// Capture blocks until one chunk of microphone audio is available, always
// returned as mono: a stereo capture stream is downmixed by averaging the
// left and right samples of each frame.
func (d *Device) Capture() (Frame, error) {
	if err := d.in.Read(); err != nil {
		return Frame{}, fmt.Errorf("audio: reading capture stream: %w", err)
	}
	var samples []int16
	if d.inChannels == 2 {
		samples = downmixStereo(d.inBuf)
	} else {
		samples = make([]int16, len(d.inBuf))
		copy(samples, d.inBuf)
	}
	return Frame{Samples: samples, SampleRate: d.SampleRate}, nil
}

// Play writes one chunk of mono samples to the speaker, blocking until
// accepted. A stereo playback stream gets each sample replicated to both
// channels. Short frames are zero-padded against the fixed-size output
// buffer (underrun is silence, never a fault).
func (d *Device) Play(frame Frame) error {
	samples := frame.Samples
	if d.outChannels == 2 {
		samples = duplicateMono(samples)
	}
	n := copy(d.outBuf, samples)
	for i := n; i < len(d.outBuf); i++ {
		d.outBuf[i] = 0
	}
	if err := d.out.Write(); err != nil {
		return fmt.Errorf("audio: writing playback stream: %w", err)
	}
	return nil
}

// downmixStereo averages each interleaved L/R pair into one mono sample.
func downmixStereo(interleaved []int16) []int16 {
	mono := make([]int16, len(interleaved)/2)
	for i := range mono {
		l := int32(interleaved[2*i])
		r := int32(interleaved[2*i+1])
		mono[i] = int16((l + r) / 2)
	}
	return mono
}

// duplicateMono replicates each mono sample into an interleaved L/R pair.
func duplicateMono(mono []int16) []int16 {
	interleaved := make([]int16, 2*len(mono))
	for i, s := range mono {
		interleaved[2*i] = s
		interleaved[2*i+1] = s
	}
	return interleaved
}

// Close stops and releases both streams.
func (d *Device) Close() error {
	var firstErr error
	if d.in != nil {
		if err := d.in.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("audio: closing input stream: %w", err)
		}
	}
	if d.out != nil {
		if err := d.out.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("audio: closing output stream: %w", err)
		}
	}
	return firstErr
}

func logDeviceList(direction string) {
	devices, err := portaudio.Devices()
	if err != nil {
		slog.Warn("no default audio device available, and device enumeration failed", "direction", direction, "error", err)
		return
	}
	names := make([]string, 0, len(devices))
	for _, dev := range devices {
		names = append(names, dev.Name)
	}
	slog.Warn("no default audio device available", "direction", direction, "available", names)
}
