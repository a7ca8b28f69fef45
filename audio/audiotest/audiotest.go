// Package audiotest provides in-memory fakes of the audio device, codec and
// permission capabilities for use in unit tests.
//
// All fakes are safe for concurrent use. They record every call so tests can
// assert on call counts and arguments, and expose fields that control their
// return values.
package audiotest

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/lisuiheng/soundstream-go/audio"
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a fake [audio.CaptureDevice]. Each Read returns the next queued
// burst; with nothing queued it returns 0.
type Capture struct {
	mu sync.Mutex

	// StartError / StopError are returned by Start and Stop.
	StartError error
	StopError  error
	// OpenError makes the opener fail.
	OpenError error

	// MinBuffer is returned by MinBufferSize. Defaults to one frame.
	MinBuffer int

	bursts   [][]int16
	onPeriod func()

	StartCalls int
	StopCalls  int
	ReadCalls  int
	Closed     bool
}

var _ audio.CaptureDevice = (*Capture)(nil)

// Opener returns an [audio.CaptureOpener] that hands out c and remembers the
// period callback so tests can fire it with [Capture.Period].
func (c *Capture) Opener() audio.CaptureOpener {
	return func(_ audio.SessionConfig, onPeriod func(), _ *slog.Logger) (audio.CaptureDevice, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.OpenError != nil {
			return nil, c.OpenError
		}
		c.onPeriod = onPeriod
		c.Closed = false
		return c, nil
	}
}

// Queue appends bursts to be returned by subsequent Read calls.
func (c *Capture) Queue(bursts ...[]int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range bursts {
		c.bursts = append(c.bursts, append([]int16(nil), b...))
	}
}

// Feed queues one burst and fires the period callback, like a device would.
func (c *Capture) Feed(burst []int16) {
	c.Queue(burst)
	c.Period()
}

// Period fires the period callback registered at open time.
func (c *Capture) Period() {
	c.mu.Lock()
	fn := c.onPeriod
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Capture) Read(buf []int16) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadCalls++
	if len(c.bursts) == 0 {
		return 0
	}
	b := c.bursts[0]
	n := copy(buf, b)
	if n < len(b) {
		c.bursts[0] = b[n:]
	} else {
		c.bursts = c.bursts[1:]
	}
	return n
}

func (c *Capture) MinBufferSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MinBuffer > 0 {
		return c.MinBuffer
	}
	return audio.FrameSize
}

func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StartCalls++
	return c.StartError
}

func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCalls++
	return c.StopError
}

func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Playback is a fake [audio.PlaybackDevice] that records every written frame.
type Playback struct {
	mu sync.Mutex

	StartError error
	StopError  error
	WriteError error
	OpenError  error

	Writes     [][]int16
	StartCalls int
	StopCalls  int
	CloseCalls int
}

var _ audio.PlaybackDevice = (*Playback)(nil)

// Opener returns an [audio.PlaybackOpener] that hands out p.
func (p *Playback) Opener() audio.PlaybackOpener {
	return func(audio.SessionConfig, *slog.Logger) (audio.PlaybackDevice, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.OpenError != nil {
			return nil, p.OpenError
		}
		return p, nil
	}
}

func (p *Playback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls++
	return p.StartError
}

func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StopCalls++
	return p.StopError
}

func (p *Playback) Write(pcm []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteError != nil {
		return p.WriteError
	}
	p.Writes = append(p.Writes, append([]int16(nil), pcm...))
	return nil
}

func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls++
	return nil
}

// WriteCount returns the number of successful writes.
func (p *Playback) WriteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Writes)
}

// ─── Codec ────────────────────────────────────────────────────────────────────

// ErrCodecClosed is returned by the PCM codec after Close.
var ErrCodecClosed = errors.New("audiotest: codec closed")

// PCMCodec is an [audio.CodecFactory] whose codec is the identity transform:
// encoding yields little-endian PCM bytes and decoding parses them back.
// It lets stage tests assert exact sample round trips.
type PCMCodec struct {
	mu sync.Mutex

	// EncoderError / DecoderError make the factory fail.
	EncoderError error
	DecoderError error

	EncodersCreated int
	DecodersCreated int
}

var _ audio.CodecFactory = (*PCMCodec)(nil)

func (f *PCMCodec) NewEncoder(audio.SessionConfig, *slog.Logger) (audio.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EncoderError != nil {
		return nil, f.EncoderError
	}
	f.EncodersCreated++
	return &pcmCodec{}, nil
}

func (f *PCMCodec) NewDecoder(audio.SessionConfig, *slog.Logger) (audio.Decoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DecoderError != nil {
		return nil, f.DecoderError
	}
	f.DecodersCreated++
	return &pcmCodec{}, nil
}

type pcmCodec struct {
	closed bool
}

func (c *pcmCodec) Encode(pcm []int16) ([]byte, error) {
	if c.closed {
		return nil, ErrCodecClosed
	}
	return audio.Int16ToBytes(pcm), nil
}

func (c *pcmCodec) Decode(data []byte) ([]int16, error) {
	if c.closed {
		return nil, ErrCodecClosed
	}
	return audio.BytesToInt16(data), nil
}

func (c *pcmCodec) Close() { c.closed = true }

// ─── Permission ───────────────────────────────────────────────────────────────

// Permission is a fake [audio.PermissionRequester]. RequestPermission only
// records the continuation; tests resolve outstanding requests in order with
// [Permission.Resolve].
type Permission struct {
	mu sync.Mutex

	Granted      bool
	RequestCalls int
	resumes      []func(bool)
}

var _ audio.PermissionRequester = (*Permission)(nil)

func (p *Permission) HasPermission() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Granted
}

func (p *Permission) RequestPermission(resume func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RequestCalls++
	p.resumes = append(p.resumes, resume)
}

// Resolve answers the oldest outstanding request and records the answer. It
// reports false, changing nothing, if no request is pending.
func (p *Permission) Resolve(granted bool) bool {
	p.mu.Lock()
	if len(p.resumes) == 0 {
		p.mu.Unlock()
		return false
	}
	resume := p.resumes[0]
	p.resumes = p.resumes[1:]
	p.Granted = granted
	p.mu.Unlock()

	resume(granted)
	return true
}

// ─── Events ───────────────────────────────────────────────────────────────────

// Events is an [audio.Notifier] that records every event.
type Events struct {
	mu     sync.Mutex
	events []audio.Event
}

var _ audio.Notifier = (*Events)(nil)

func (e *Events) Notify(ev audio.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

// All returns a copy of the recorded events.
func (e *Events) All() []audio.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]audio.Event(nil), e.events...)
}

// Named returns the recorded events with the given name.
func (e *Events) Named(name string) []audio.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []audio.Event
	for _, ev := range e.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
