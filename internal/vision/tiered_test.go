package vision

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeModel struct {
	name   string
	result *Result
	err    error
	calls  int
	closed bool
}

func (f *fakeModel) Parse(ctx context.Context, req Request) (*Result, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeModel) Name() string { return f.name }

func (f *fakeModel) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Tiered", func() {
	var (
		mini   *fakeModel
		full   *fakeModel
		tiered *Tiered
		result *Result
		err    error
	)

	BeforeEach(func() {
		mini = &fakeModel{name: "mini", result: &Result{Amount: 10, Confidence: 0.9, Model: "mini"}}
		full = &fakeModel{name: "full", result: &Result{Amount: 10, Confidence: 0.95, Model: "full"}}
		tiered = NewTiered(mini, full)
	})

	JustBeforeEach(func() {
		result, err = tiered.Parse(context.Background(), Request{ImageB64: "data:image/jpeg;base64,Zm9v"})
	})

	When("the mini model succeeds", func() {
		It("should return the mini result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Model).To(Equal("mini"))
		})

		It("should never call the full model", func() {
			Expect(full.calls).To(Equal(0))
		})
	})

	When("the mini model fails", func() {
		BeforeEach(func() {
			mini.result = nil
			mini.err = errors.New("mini exploded")
		})

		It("should fall back to the full model", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Model).To(Equal("full"))
		})
	})

	When("both models fail", func() {
		BeforeEach(func() {
			mini.result = nil
			mini.err = errors.New("mini exploded")
			full.result = nil
			full.err = errors.New("full exploded")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrParseFailed))
		})
	})

	Describe("Close", func() {
		It("should close both backends", func() {
			Expect(tiered.Close()).To(Succeed())
			Expect(mini.closed).To(BeTrue())
			Expect(full.closed).To(BeTrue())
		})
	})
})
