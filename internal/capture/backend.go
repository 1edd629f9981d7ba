package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// CaptureBackend abstracts the platform audio capture mechanism. The audio
// session depends only on this interface; the concrete variant is chosen once
// at startup.
type CaptureBackend interface {
	// Acquire takes exclusive hold of the capture device. Fails with one of
	// ErrNotSupported, ErrNoDevice, ErrPermissionDenied or ErrDeviceBusy.
	Acquire(ctx context.Context) error

	// Begin starts recording. Valid only after a successful Acquire.
	Begin() error

	// Finalize stops recording, flushes buffers and yields the captured media.
	Finalize() (*MediaHandle, error)

	// Release frees the device. Idempotent; called on every exit path.
	Release() error
}

// DeviceBackend records through an external capture tool writing into a
// spooled file. This is the native-device variant.
type DeviceBackend struct {
	Command string   // capture tool, e.g. "arecord" or "ffmpeg"
	Args    []string // tool arguments; the output path is appended
	Device  string   // device node checked during acquisition
	MIME    string   // container type the tool produces

	spool    *MediaSpool
	cmd      *exec.Cmd
	path     string
	acquired bool
	mu       sync.Mutex
}

// NewDeviceBackend creates a DeviceBackend spooling into spool
func NewDeviceBackend(command string, args []string, device, mime string, spool *MediaSpool) *DeviceBackend {
	if mime == "" {
		mime = "audio/wav"
	}
	return &DeviceBackend{Command: command, Args: args, Device: device, MIME: mime, spool: spool}
}

// Acquire verifies the tool and device are usable and claims the backend
func (d *DeviceBackend) Acquire(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.acquired {
		return ErrDeviceBusy
	}
	if _, err := exec.LookPath(d.Command); err != nil {
		return ErrNotSupported
	}
	if d.Device != "" {
		if _, err := os.Stat(d.Device); err != nil {
			if os.IsNotExist(err) {
				return ErrNoDevice
			}
			if os.IsPermission(err) {
				return ErrPermissionDenied
			}
			return fmt.Errorf("checking capture device: %w", err)
		}
	}

	d.path = d.spool.Allocate(fmt.Sprintf("clip-%d%s", time.Now().UnixNano(), extensionForMIME(d.MIME)))
	d.cmd = exec.CommandContext(ctx, d.Command, append(d.Args, d.path)...) //nolint:gosec
	d.acquired = true
	return nil
}

// Begin starts the capture tool
func (d *DeviceBackend) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acquired || d.cmd == nil {
		return ErrNotRecording
	}
	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("starting capture tool: %w", err)
	}
	return nil
}

// Finalize interrupts the capture tool and yields the spooled clip
func (d *DeviceBackend) Finalize() (*MediaHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd == nil || d.cmd.Process == nil {
		return nil, ErrNotRecording
	}

	// Interrupt lets the tool flush its container trailer before exiting.
	if err := d.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Warn("interrupting capture tool", "error", err)
	}
	if err := d.cmd.Wait(); err != nil {
		// Expected for tools that exit non-zero on signal.
		slog.Debug("capture tool exited", "error", err)
	}
	d.cmd = nil

	path := d.path
	spool := d.spool
	return NewFileHandle(path, d.MIME, func() error {
		return spool.Delete(path)
	}), nil
}

// Release frees the device claim and kills a still-running tool
func (d *DeviceBackend) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil && d.cmd.Process != nil {
		if err := d.cmd.Process.Kill(); err != nil {
			slog.Warn("killing capture tool", "error", err)
		}
		d.cmd = nil
	}
	d.acquired = false
	return nil
}

// StreamBackend drains a live media stream into memory and yields a blob
// handle. This is the browser-media variant: the stream stands in for a
// MediaRecorder feed. The source must report EOF when the underlying stream
// closes, or Finalize will wait on the in-flight read.
type StreamBackend struct {
	Source io.Reader
	MIME   string

	mu       sync.Mutex
	buf      bytes.Buffer
	acquired bool
	stopped  chan struct{}
	drained  chan struct{}
}

// NewStreamBackend creates a StreamBackend reading from source
func NewStreamBackend(source io.Reader, mime string) *StreamBackend {
	if mime == "" {
		mime = "audio/webm"
	}
	return &StreamBackend{Source: source, MIME: mime}
}

// Acquire claims the stream
func (s *StreamBackend) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Source == nil {
		return ErrNotSupported
	}
	if s.acquired {
		return ErrDeviceBusy
	}
	s.acquired = true
	s.buf.Reset()
	return nil
}

// Begin starts draining the stream in the background
func (s *StreamBackend) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acquired {
		return ErrNotRecording
	}

	s.stopped = make(chan struct{})
	s.drained = make(chan struct{})
	stopped, drained := s.stopped, s.drained

	go func() {
		defer close(drained)
		chunk := make([]byte, 4096)
		for {
			select {
			case <-stopped:
				return
			default:
			}
			n, err := s.Source.Read(chunk)
			if n > 0 {
				s.mu.Lock()
				s.buf.Write(chunk[:n])
				s.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// Finalize stops draining and yields whatever was captured so far
func (s *StreamBackend) Finalize() (*MediaHandle, error) {
	s.mu.Lock()
	if s.stopped == nil {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	stopped, drained := s.stopped, s.drained
	s.stopped = nil
	s.mu.Unlock()

	close(stopped)
	<-drained

	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, s.buf.Len())
	copy(data, s.buf.Bytes())
	s.buf.Reset()
	return NewBlobHandle(data, s.MIME), nil
}

// Release frees the stream claim
func (s *StreamBackend) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped != nil {
		close(s.stopped)
		s.stopped = nil
	}
	s.acquired = false
	return nil
}

func extensionForMIME(mime string) string {
	switch mime {
	case "audio/wav":
		return ".wav"
	case "audio/webm":
		return ".webm"
	case "audio/mp3":
		return ".mp3"
	default:
		return ".m4a"
	}
}
