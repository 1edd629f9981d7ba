package capture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const (
	// Captured images are constrained to 4:3 before encoding.
	aspectWidth  = 4
	aspectHeight = 3

	// jpegQuality matches the capture compression setting.
	jpegQuality = 80
)

// normalizeImage decodes any supported input (JPEG, PNG, GIF, HEIC/HEIF, PDF),
// center-crops it to the fixed aspect ratio and re-encodes as JPEG at the
// capture quality setting.
func normalizeImage(data []byte, mimeType string) ([]byte, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}

	img = cropToAspect(img, aspectWidth, aspectHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if mimeType == "application/pdf" {
		return pdfFirstPage(data)
	}

	// HEIC/HEIF is the default phone camera format and is not covered by the
	// standard image package.
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// pdfFirstPage renders the first page of a PDF receipt as an image. Most
// receipts are single page.
func pdfFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// cropToAspect returns a centered sub-image constrained to w:h. Images already
// at the target ratio pass through untouched.
func cropToAspect(img image.Image, w, h int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW*h == srcH*w {
		return img
	}

	cropW, cropH := srcW, srcH
	if srcW*h > srcH*w {
		cropW = srcH * w / h
	} else {
		cropH = srcW * h / w
	}

	x0 := bounds.Min.X + (srcW-cropW)/2
	y0 := bounds.Min.Y + (srcH-cropH)/2
	rect := image.Rect(x0, y0, x0+cropW, y0+cropH)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(rect)
	}
	return img
}

// isHEICFormat checks the ftyp box for HEIC/HEIF brands
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
