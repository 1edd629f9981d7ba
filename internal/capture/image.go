package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ImageSource abstracts where still images come from: a photo library pick or
// a live camera capture, each behind its own permission grant.
type ImageSource interface {
	// LibraryPermission fails with ErrLibraryPermissionDenied if refused
	LibraryPermission() error

	// CameraPermission fails with ErrCameraPermissionDenied if refused
	CameraPermission() error

	// ReadLibraryImage returns the picked image bytes and MIME type
	ReadLibraryImage() ([]byte, string, error)

	// CaptureImage takes a still photo and returns bytes and MIME type
	CaptureImage(ctx context.Context) ([]byte, string, error)
}

// ImageSession acquires a single still image and normalizes it to a
// base64-encodable JPEG handle. No retry policy; the caller re-invokes.
type ImageSession struct {
	source ImageSource
}

// NewImageSession creates a session over the given source
func NewImageSession(source ImageSource) *ImageSession {
	return &ImageSession{source: source}
}

// PickFromLibrary selects an existing image from the photo library
func (s *ImageSession) PickFromLibrary(ctx context.Context) (*MediaHandle, error) {
	if err := s.source.LibraryPermission(); err != nil {
		return nil, err
	}
	data, mime, err := s.source.ReadLibraryImage()
	if err != nil {
		return nil, fmt.Errorf("reading library image: %w", err)
	}
	return s.normalize(data, mime)
}

// CaptureFromCamera takes a new photo
func (s *ImageSession) CaptureFromCamera(ctx context.Context) (*MediaHandle, error) {
	if err := s.source.CameraPermission(); err != nil {
		return nil, err
	}
	data, mime, err := s.source.CaptureImage(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing image: %w", err)
	}
	return s.normalize(data, mime)
}

func (s *ImageSession) normalize(data []byte, mime string) (*MediaHandle, error) {
	normalized, err := normalizeImage(data, mime)
	if err != nil {
		return nil, err
	}
	return NewBlobHandle(normalized, "image/jpeg"), nil
}

// FileSource serves library picks from a local file and camera captures from
// an external snapshot tool. It is the CLI's stand-in for the device photo
// library and camera.
type FileSource struct {
	LibraryPath   string
	CameraCommand string
	CameraArgs    []string

	spool *MediaSpool
}

// NewFileSource creates a FileSource. spool is only needed for camera capture.
func NewFileSource(libraryPath, cameraCommand string, cameraArgs []string, spool *MediaSpool) *FileSource {
	return &FileSource{
		LibraryPath:   libraryPath,
		CameraCommand: cameraCommand,
		CameraArgs:    cameraArgs,
		spool:         spool,
	}
}

// LibraryPermission checks the picked file is readable
func (f *FileSource) LibraryPermission() error {
	if f.LibraryPath == "" {
		return ErrLibraryPermissionDenied
	}
	if _, err := os.Stat(f.LibraryPath); err != nil {
		if os.IsPermission(err) {
			return ErrLibraryPermissionDenied
		}
		return fmt.Errorf("checking library image: %w", err)
	}
	return nil
}

// CameraPermission checks the snapshot tool is available
func (f *FileSource) CameraPermission() error {
	if f.CameraCommand == "" {
		return ErrCameraPermissionDenied
	}
	if _, err := exec.LookPath(f.CameraCommand); err != nil {
		return ErrCameraPermissionDenied
	}
	return nil
}

// ReadLibraryImage reads the picked file
func (f *FileSource) ReadLibraryImage() ([]byte, string, error) {
	data, err := os.ReadFile(f.LibraryPath)
	if err != nil {
		return nil, "", err
	}
	return data, imageMIMEFromExtension(f.LibraryPath), nil
}

// CaptureImage shells out to the snapshot tool and reads its output
func (f *FileSource) CaptureImage(ctx context.Context) ([]byte, string, error) {
	path := f.spool.Allocate("snapshot.jpg")
	cmd := exec.CommandContext(ctx, f.CameraCommand, append(f.CameraArgs, path)...) //nolint:gosec
	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("running snapshot tool: %w", err)
	}
	defer func() { _ = f.spool.Delete(path) }()

	data, err := f.spool.Get(path)
	if err != nil {
		return nil, "", err
	}
	return data, "image/jpeg", nil
}

func imageMIMEFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}
