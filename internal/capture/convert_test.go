package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// encodePNG renders a solid test image of the given size
func encodePNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("normalizeImage", func() {
	var (
		input    []byte
		mimeType string
		output   []byte
		err      error
	)

	JustBeforeEach(func() {
		output, err = normalizeImage(input, mimeType)
	})

	When("the input is a PNG wider than 4:3", func() {
		BeforeEach(func() {
			input = encodePNG(800, 300)
			mimeType = "image/png"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should re-encode as JPEG", func() {
			_, err := jpeg.Decode(bytes.NewReader(output))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should crop to the 4:3 aspect ratio", func() {
			img, err := jpeg.Decode(bytes.NewReader(output))
			Expect(err).NotTo(HaveOccurred())
			bounds := img.Bounds()
			Expect(bounds.Dx()).To(Equal(400))
			Expect(bounds.Dy()).To(Equal(300))
		})
	})

	When("the input is taller than 4:3", func() {
		BeforeEach(func() {
			input = encodePNG(400, 900)
			mimeType = "image/png"
		})

		It("should crop the height", func() {
			img, decodeErr := jpeg.Decode(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			bounds := img.Bounds()
			Expect(bounds.Dx()).To(Equal(400))
			Expect(bounds.Dy()).To(Equal(300))
		})
	})

	When("the input is already 4:3", func() {
		BeforeEach(func() {
			input = encodePNG(400, 300)
			mimeType = "image/png"
		})

		It("should keep the dimensions", func() {
			img, decodeErr := jpeg.Decode(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			bounds := img.Bounds()
			Expect(bounds.Dx()).To(Equal(400))
			Expect(bounds.Dy()).To(Equal(300))
		})
	})

	When("the MIME type is missing", func() {
		BeforeEach(func() {
			input = encodePNG(400, 300)
			mimeType = ""
		})

		It("should fall back to content sniffing", func() {
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the input is not an image", func() {
		BeforeEach(func() {
			input = []byte("definitely not pixels")
			mimeType = "image/png"
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

type fakeImageSource struct {
	libraryErr error
	cameraErr  error
	data       []byte
	mime       string
	readErr    error
}

func (f *fakeImageSource) LibraryPermission() error { return f.libraryErr }
func (f *fakeImageSource) CameraPermission() error  { return f.cameraErr }

func (f *fakeImageSource) ReadLibraryImage() ([]byte, string, error) {
	return f.data, f.mime, f.readErr
}

func (f *fakeImageSource) CaptureImage(ctx context.Context) ([]byte, string, error) {
	return f.data, f.mime, f.readErr
}

var _ = Describe("ImageSession", func() {
	var (
		source  *fakeImageSource
		session *ImageSession
	)

	BeforeEach(func() {
		source = &fakeImageSource{data: encodePNG(400, 300), mime: "image/png"}
		session = NewImageSession(source)
	})

	Describe("PickFromLibrary", func() {
		When("permission is granted", func() {
			It("should yield a normalized JPEG handle", func() {
				handle, err := session.PickFromLibrary(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(handle.MIME).To(Equal("image/jpeg"))
				Expect(handle.DataURL()).To(HavePrefix("data:image/jpeg;base64,"))
			})
		})

		When("library permission is denied", func() {
			BeforeEach(func() {
				source.libraryErr = ErrLibraryPermissionDenied
			})

			It("should surface the sentinel error", func() {
				_, err := session.PickFromLibrary(context.Background())
				Expect(err).To(MatchError(ErrLibraryPermissionDenied))
			})
		})
	})

	Describe("CaptureFromCamera", func() {
		When("camera permission is denied", func() {
			BeforeEach(func() {
				source.cameraErr = ErrCameraPermissionDenied
			})

			It("should surface the sentinel error", func() {
				_, err := session.CaptureFromCamera(context.Background())
				Expect(err).To(MatchError(ErrCameraPermissionDenied))
			})
		})

		When("permission is granted", func() {
			It("should yield a normalized JPEG handle", func() {
				handle, err := session.CaptureFromCamera(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(handle.MIME).To(Equal("image/jpeg"))
			})
		})
	})
})
