package parsesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ledgerlens/internal/vision"
)

func TestParseSvc(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ParseSvc Suite")
}

var _ = BeforeSuite(func() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
})

type fakeParser struct {
	result *vision.Result
	err    error
	calls  int
}

func (f *fakeParser) Parse(ctx context.Context, req vision.Request) (*vision.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

var _ = Describe("Server", func() {
	var (
		parser   *fakeParser
		clock    *fakeClock
		limiter  *RateLimiter
		server   *Server
		recorder *httptest.ResponseRecorder
		request  *http.Request
	)

	vendor := "Starbucks"
	validBody := func() *bytes.Buffer {
		body, _ := json.Marshal(vision.Request{ImageB64: "data:image/jpeg;base64,Zm9vYmFy"})
		return bytes.NewBuffer(body)
	}

	BeforeEach(func() {
		parser = &fakeParser{result: &vision.Result{Vendor: &vendor, Amount: 12.5, Confidence: 0.9, Model: "mini"}}
		clock = &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
		limiter = NewRateLimiterWithTime(3, time.Minute, true, clock)
		server = NewServer(parser, limiter, "2.0.0")
		recorder = httptest.NewRecorder()
	})

	JustBeforeEach(func() {
		server.ServeHTTP(recorder, request)
	})

	Describe("health check", func() {
		BeforeEach(func() {
			request = httptest.NewRequest(http.MethodGet, "/", nil)
		})

		It("should return 200", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("should report healthy status with version and features", func() {
			var payload struct {
				Status   string   `json:"status"`
				Version  string   `json:"version"`
				Features []string `json:"features"`
			}
			Expect(json.Unmarshal(recorder.Body.Bytes(), &payload)).To(Succeed())
			Expect(payload.Status).To(Equal("healthy"))
			Expect(payload.Version).To(Equal("2.0.0"))
			Expect(payload.Features).To(ContainElement("receipt-parsing"))
		})
	})

	Describe("CORS preflight", func() {
		BeforeEach(func() {
			request = httptest.NewRequest(http.MethodOptions, "/", nil)
		})

		It("should return 204", func() {
			Expect(recorder.Code).To(Equal(http.StatusNoContent))
		})

		It("should set the CORS headers", func() {
			Expect(recorder.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(recorder.Header().Get("Access-Control-Allow-Headers")).To(Equal("authorization, x-client-info, apikey, content-type"))
			Expect(recorder.Header().Get("Access-Control-Allow-Methods")).To(Equal("GET, POST, OPTIONS"))
		})
	})

	Describe("unsupported method", func() {
		BeforeEach(func() {
			request = httptest.NewRequest(http.MethodDelete, "/", nil)
		})

		It("should return 405 with a JSON error", func() {
			Expect(recorder.Code).To(Equal(http.StatusMethodNotAllowed))
			Expect(recorder.Body.String()).To(ContainSubstring("Method not allowed"))
		})
	})

	Describe("parsing a receipt", func() {
		BeforeEach(func() {
			request = httptest.NewRequest(http.MethodPost, "/", validBody())
		})

		When("the request is valid", func() {
			It("should return 200", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
			})

			It("should return the parsed fields with the service version", func() {
				var payload struct {
					Vendor  string  `json:"vendor"`
					Amount  float64 `json:"amount"`
					Version string  `json:"version"`
				}
				Expect(json.Unmarshal(recorder.Body.Bytes(), &payload)).To(Succeed())
				Expect(payload.Vendor).To(Equal("Starbucks"))
				Expect(payload.Amount).To(Equal(12.5))
				Expect(payload.Version).To(Equal("2.0.0"))
			})
		})

		When("the payload is not a data URL", func() {
			BeforeEach(func() {
				body, _ := json.Marshal(vision.Request{ImageB64: "Zm9vYmFy"})
				request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBuffer(body))
			})

			It("should return 400", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
				Expect(recorder.Body.String()).To(ContainSubstring("Invalid image data"))
			})

			It("should never call the parser", func() {
				Expect(parser.calls).To(Equal(0))
			})
		})

		When("the image exceeds the size cap", func() {
			BeforeEach(func() {
				huge := "data:image/jpeg;base64," + strings.Repeat("A", 15<<20)
				body, _ := json.Marshal(vision.Request{ImageB64: huge})
				request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBuffer(body))
			})

			It("should return 400", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
				Expect(recorder.Body.String()).To(ContainSubstring("Image too large"))
			})

			It("should never call the parser", func() {
				Expect(parser.calls).To(Equal(0))
			})
		})

		When("the body is not JSON", func() {
			BeforeEach(func() {
				request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
			})

			It("should return 400", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("every model fails", func() {
			BeforeEach(func() {
				parser.result = nil
				parser.err = errors.New("model meltdown")
			})

			It("should return 500 with a generic message", func() {
				Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
				Expect(recorder.Body.String()).To(ContainSubstring("Failed to parse receipt"))
				Expect(recorder.Body.String()).NotTo(ContainSubstring("meltdown"))
			})
		})
	})

	Describe("rate limiting", func() {
		sendParse := func(token string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", validBody())
			req.Header.Set("Authorization", "Bearer "+token)
			server.ServeHTTP(rec, req)
			return rec
		}

		BeforeEach(func() {
			for i := 0; i < 3; i++ {
				Expect(sendParse("alice-token").Code).To(Equal(http.StatusOK))
			}
			request = httptest.NewRequest(http.MethodPost, "/", validBody())
			request.Header.Set("Authorization", "Bearer alice-token")
		})

		It("should reject the request over the limit", func() {
			Expect(recorder.Code).To(Equal(http.StatusTooManyRequests))
		})

		It("should return the retry delay in header and body", func() {
			Expect(recorder.Header().Get("Retry-After")).To(Equal("60"))
			var payload struct {
				RetryAfter int `json:"retry_after"`
			}
			Expect(json.Unmarshal(recorder.Body.Bytes(), &payload)).To(Succeed())
			Expect(payload.RetryAfter).To(Equal(60))
		})

		It("should not throttle a different client", func() {
			Expect(sendParse("bob-token").Code).To(Equal(http.StatusOK))
		})

		It("should allow the client again after the window resets", func() {
			clock.now = clock.now.Add(61 * time.Second)
			Expect(sendParse("alice-token").Code).To(Equal(http.StatusOK))
		})
	})
})

var _ = Describe("RateLimiter", func() {
	var (
		clock   *fakeClock
		limiter *RateLimiter
	)

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
		limiter = NewRateLimiterWithTime(2, time.Minute, true, clock)
	})

	It("should allow requests up to the limit", func() {
		for i := 0; i < 2; i++ {
			allowed, _ := limiter.Allow("client")
			Expect(allowed).To(BeTrue())
		}
		allowed, retryAfter := limiter.Allow("client")
		Expect(allowed).To(BeFalse())
		Expect(retryAfter).To(Equal(time.Minute))
	})

	It("should reset the window lazily", func() {
		limiter.Allow("client")
		limiter.Allow("client")
		clock.now = clock.now.Add(time.Minute)
		allowed, _ := limiter.Allow("client")
		Expect(allowed).To(BeTrue())
	})

	It("should pass everything through when disabled", func() {
		disabled := NewRateLimiterWithTime(1, time.Minute, false, clock)
		for i := 0; i < 10; i++ {
			allowed, _ := disabled.Allow("client")
			Expect(allowed).To(BeTrue())
		}
	})
})

var _ = Describe("ClientID", func() {
	newRequest := func() *http.Request {
		return httptest.NewRequest(http.MethodPost, "/", nil)
	}

	It("should hash the bearer token", func() {
		req := newRequest()
		req.Header.Set("Authorization", "Bearer secret-token")
		id := ClientID(req)
		Expect(id).To(HaveLen(16))
		Expect(id).NotTo(ContainSubstring("secret"))
	})

	It("should be stable for the same token", func() {
		first := newRequest()
		first.Header.Set("Authorization", "Bearer secret-token")
		second := newRequest()
		second.Header.Set("Authorization", "Bearer secret-token")
		Expect(ClientID(first)).To(Equal(ClientID(second)))
	})

	It("should fall back to the first forwarded address", func() {
		req := newRequest()
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		Expect(ClientID(req)).To(Equal("203.0.113.7"))
	})

	It("should fall back to the real IP header", func() {
		req := newRequest()
		req.Header.Set("X-Real-Ip", "203.0.113.9")
		Expect(ClientID(req)).To(Equal("203.0.113.9"))
	})

	It("should fall back to anonymous", func() {
		Expect(ClientID(newRequest())).To(Equal("anonymous"))
	})
})

var _ = Describe("jsonError", func() {
	It("should write the message with CORS headers", func() {
		recorder := httptest.NewRecorder()
		jsonError(recorder, "boom", http.StatusBadRequest)
		Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		Expect(recorder.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
		Expect(recorder.Body.String()).To(Equal(fmt.Sprintf("{%q:%q}\n", "error", "boom")))
	})
})
