package transcribe

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"ledgerlens/internal/capture"
)

func TestTranscribe(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Transcribe Suite")
}

var _ = BeforeSuite(func() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
})

var _ = Describe("Client", func() {
	var (
		server *ghttp.Server
		client *Client
		handle *capture.MediaHandle
		result *Result
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		client = NewClient(server.URL(), "test-key")
		handle = capture.NewBlobHandle([]byte("fake-audio"), "audio/webm")
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		result, err = client.Transcribe(context.Background(), handle)
	})

	When("the service transcribes successfully", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/audio/transcriptions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				func(w http.ResponseWriter, r *http.Request) {
					mediaType, params, parseErr := mime.ParseMediaType(r.Header.Get("Content-Type"))
					Expect(parseErr).NotTo(HaveOccurred())
					Expect(mediaType).To(Equal("multipart/form-data"))

					reader := multipart.NewReader(r.Body, params["boundary"])
					form, formErr := reader.ReadForm(1 << 20)
					Expect(formErr).NotTo(HaveOccurred())
					Expect(form.Value["model"]).To(ConsistOf("whisper-1"))
					Expect(form.Value["response_format"]).To(ConsistOf("json"))

					files := form.File["file"]
					Expect(files).To(HaveLen(1))
					Expect(files[0].Filename).To(Equal("recording.webm"))
					Expect(files[0].Header.Get("Content-Type")).To(Equal("audio/webm"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"text":     "Lunch at Starbucks 12 dollars",
					"language": "english",
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the transcribed text", func() {
			Expect(result.Text).To(Equal("Lunch at Starbucks 12 dollars"))
		})

		It("should report the fixed confidence", func() {
			Expect(result.Confidence).To(Equal(0.95))
		})

		It("should pass the detected language through", func() {
			Expect(result.Language).To(Equal("english"))
		})

		It("should release the handle", func() {
			Expect(handle.Data).To(BeNil())
		})
	})

	When("the service returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "upstream down"))
		})

		It("returns the service error", func() {
			Expect(err).To(MatchError(ErrService))
		})
	})

	When("the response has no text field", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"language": "english",
			}))
		})

		It("returns the service error", func() {
			Expect(err).To(MatchError(ErrService))
		})
	})

	When("the response text is empty but present", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"text": "",
			}))
		})

		It("should return an empty transcript without error", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Text).To(Equal(""))
		})
	})

	When("the handle is empty", func() {
		BeforeEach(func() {
			handle = capture.NewBlobHandle(nil, "audio/webm")
		})

		It("returns the empty recording error", func() {
			Expect(err).To(MatchError(capture.ErrEmptyRecording))
		})

		It("should never call the service", func() {
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
