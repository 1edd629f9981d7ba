package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AudioState is the recording session lifecycle state.
type AudioState int

const (
	StateIdle AudioState = iota
	StateRequestingPermission
	StateRecording
	StateProcessing
)

func (s AudioState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting-permission"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

const (
	// MaxRecordingDuration is the hard cap; recording auto-stops here.
	MaxRecordingDuration = 60 * time.Second

	// elapsedTickResolution is how often the elapsed timer advances.
	elapsedTickResolution = 100 * time.Millisecond
)

// StopResult carries the outcome of an automatic stop at the duration cap.
type StopResult struct {
	Handle *MediaHandle
	Err    error
}

// AudioSession records a single bounded-duration audio clip through a capture
// backend. One recording may be active at a time; a second Start while
// recording is rejected, not queued. The device is released on every exit
// path.
type AudioSession struct {
	backend CaptureBackend
	maxDur  time.Duration
	tick    time.Duration

	mu       sync.Mutex
	state    AudioState
	elapsed  time.Duration
	stopTick chan struct{}
	autoStop chan StopResult
}

// NewAudioSession creates a session with the default 60s cap and 100ms tick
func NewAudioSession(backend CaptureBackend) *AudioSession {
	return NewAudioSessionWithTiming(backend, MaxRecordingDuration, elapsedTickResolution)
}

// NewAudioSessionWithTiming creates a session with custom timing for testing
func NewAudioSessionWithTiming(backend CaptureBackend, maxDur, tick time.Duration) *AudioSession {
	return &AudioSession{
		backend:  backend,
		maxDur:   maxDur,
		tick:     tick,
		state:    StateIdle,
		autoStop: make(chan StopResult, 1),
	}
}

// State returns the current lifecycle state
func (s *AudioSession) State() AudioState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns how long the current recording has been running
func (s *AudioSession) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// AutoStopped delivers the handle produced when the duration cap fires.
// Buffered; a missed read does not block the timer.
func (s *AudioSession) AutoStopped() <-chan StopResult {
	return s.autoStop
}

// Start acquires the device and begins recording. Valid only from the idle
// state. Permission failures pass through as the backend's distinct sentinel
// errors and always leave the session idle with the device released.
func (s *AudioSession) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRecording, StateRequestingPermission:
		s.mu.Unlock()
		return ErrAlreadyRecording
	case StateProcessing:
		s.mu.Unlock()
		return ErrDeviceBusy
	}
	s.state = StateRequestingPermission
	s.mu.Unlock()

	if err := s.backend.Acquire(ctx); err != nil {
		s.setState(StateIdle)
		return err
	}

	if err := s.backend.Begin(); err != nil {
		if relErr := s.backend.Release(); relErr != nil {
			slog.Warn("releasing capture device after failed start", "error", relErr)
		}
		s.setState(StateIdle)
		return err
	}

	s.mu.Lock()
	s.state = StateRecording
	s.elapsed = 0
	s.stopTick = make(chan struct{})
	stopTick := s.stopTick
	s.mu.Unlock()

	go s.runTimer(stopTick)
	return nil
}

// Stop finalizes the recording and yields the captured clip. Valid only while
// recording; otherwise it is a rejected transition returning ErrNotRecording
// with no side effects. Stopping early is honored immediately and yields
// whatever was captured so far.
func (s *AudioSession) Stop() (*MediaHandle, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	s.state = StateProcessing
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
	s.mu.Unlock()

	handle, err := s.backend.Finalize()
	if relErr := s.backend.Release(); relErr != nil {
		slog.Warn("releasing capture device", "error", relErr)
	}
	s.setState(StateIdle)

	if err != nil {
		return nil, err
	}
	if handle.Empty() {
		if relErr := handle.Release(); relErr != nil {
			slog.Warn("releasing empty recording", "error", relErr)
		}
		return nil, ErrEmptyRecording
	}
	return handle, nil
}

// runTimer advances the elapsed clock and triggers the auto-stop at the cap.
// It is the cancellable periodic task behind the session's timer.
func (s *AudioSession) runTimer(stopTick chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopTick:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.elapsed += s.tick
			capped := s.elapsed >= s.maxDur && s.state == StateRecording
			s.mu.Unlock()

			if capped {
				handle, err := s.Stop()
				select {
				case s.autoStop <- StopResult{Handle: handle, Err: err}:
				default:
					slog.Warn("auto-stop result dropped, no receiver")
					if handle != nil {
						handle.Release()
					}
				}
				return
			}
		}
	}
}

func (s *AudioSession) setState(state AudioState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
