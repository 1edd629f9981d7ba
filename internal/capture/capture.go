// Package capture manages acquisition of audio clips and still images from
// the local device and hands the result off as opaque media handles.
package capture

import (
	"encoding/base64"
	"errors"
	"sync"
)

// Capture error taxonomy. Permission and device failures are distinct so the
// caller can show an actionable message for each.
var (
	// ErrNotSupported means the capture mechanism is unavailable on this host
	ErrNotSupported = errors.New("audio capture not supported on this device")

	// ErrNoDevice means no capture device was found
	ErrNoDevice = errors.New("no capture device found")

	// ErrPermissionDenied means access to the microphone was refused
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrLibraryPermissionDenied means access to the photo library was refused
	ErrLibraryPermissionDenied = errors.New("photo library permission denied")

	// ErrCameraPermissionDenied means access to the camera was refused
	ErrCameraPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceBusy means the device is held by another session
	ErrDeviceBusy = errors.New("capture device busy")

	// ErrEmptyRecording means a recording stopped with no audio data
	ErrEmptyRecording = errors.New("recording contains no audio data")

	// ErrNotRecording means Stop was called with no recording in progress
	ErrNotRecording = errors.New("no recording in progress")

	// ErrAlreadyRecording means Start was called while a recording is active
	ErrAlreadyRecording = errors.New("recording already in progress")
)

// MediaHandle is an opaque reference to captured media: either a spooled file
// (Path set) or an in-memory blob (Data set). The producing session owns the
// handle until it is handed off; Release frees the underlying resource and is
// safe to call more than once.
type MediaHandle struct {
	Path string
	Data []byte
	MIME string

	mu       sync.Mutex
	release  func() error
	released bool
}

// NewFileHandle wraps a spooled file. release is invoked once on Release.
func NewFileHandle(path, mime string, release func() error) *MediaHandle {
	return &MediaHandle{Path: path, MIME: mime, release: release}
}

// NewBlobHandle wraps an in-memory payload.
func NewBlobHandle(data []byte, mime string) *MediaHandle {
	return &MediaHandle{Data: data, MIME: mime}
}

// Empty reports whether the handle carries no media data.
func (h *MediaHandle) Empty() bool {
	if h == nil {
		return true
	}
	return h.Path == "" && len(h.Data) == 0
}

// DataURL encodes an in-memory payload as a base64 data URL. Only valid for
// blob handles.
func (h *MediaHandle) DataURL() string {
	if len(h.Data) == 0 {
		return ""
	}
	return "data:" + h.MIME + ";base64," + base64.StdEncoding.EncodeToString(h.Data)
}

// Release frees the underlying resource. Idempotent; safe on all exit paths.
func (h *MediaHandle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	h.Data = nil
	if h.release != nil {
		return h.release()
	}
	return nil
}
