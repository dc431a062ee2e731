package marker_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/JohnPlummer/essay-marker/marker"
)

var _ = Describe("Session", func() {
	var (
		ctx     context.Context
		fs      afero.Fs
		mockGen *mockGenerator
		session *marker.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		fs = afero.NewMemMapFs()
		mockGen = &mockGenerator{}
		cfg := marker.NewDefaultConfig()
		cfg.EnableMetrics = false
		session = marker.NewSession(marker.NewMarker(mockGen, marker.NewFeedbackStore(fs, "outputs"), cfg))
	})

	It("should refuse to mark before anything is loaded", func() {
		_, err := session.Mark(ctx)
		Expect(err).To(MatchError(marker.ErrNoEssays))
		Expect(mockGen.callCount()).To(Equal(0))
	})

	It("should select the first rubric on load", func() {
		session.Load(sampleEssays("a.txt"), []marker.Rubric{{Name: "one.md"}, {Name: "two.md"}}, "g")
		Expect(session.SelectedRubric().Name).To(Equal("one.md"))
	})

	It("should select a rubric by name", func() {
		session.Load(sampleEssays("a.txt"), []marker.Rubric{{Name: "one.md"}, {Name: "two.md", Text: "Two"}}, "g")
		Expect(session.SelectRubric("two.md")).To(Succeed())
		Expect(session.SelectedRubric().Text).To(Equal("Two"))

		Expect(session.SelectRubric("three.md")).To(MatchError(marker.ErrUnknownRubric))
		Expect(session.SelectedRubric().Name).To(Equal("two.md"))
	})

	It("should load folders from disk and mark", func() {
		Expect(afero.WriteFile(fs, "essays/a.txt", []byte("A"), 0o644)).To(Succeed())
		Expect(afero.WriteFile(fs, "rubric/r.md", []byte("R"), 0o644)).To(Succeed())
		Expect(afero.WriteFile(fs, "guidance.md", []byte("G"), 0o644)).To(Succeed())

		Expect(session.LoadFolders(fs, "essays", "rubric", "guidance.md")).To(Succeed())
		state := session.State()
		Expect(state.Essays).To(Equal([]string{"a.txt"}))
		Expect(state.Rubrics).To(Equal([]string{"r.md"}))
		Expect(state.HasGuidance).To(BeTrue())

		run, err := session.Mark(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(run.Results).To(HaveLen(1))
		Expect(session.LastRun()).To(Equal(run))
		Expect(session.State().LastRunID).To(Equal(run.ID))
		Expect(session.State().Running).To(BeFalse())
	})

	It("should refuse a second run while one is in progress", func() {
		session.Load(sampleEssays("a.txt", "b.txt"), []marker.Rubric{{Name: "r.md"}}, "g")

		started := make(chan struct{})
		release := make(chan struct{})
		mockGen.onCall = func(call int) {
			if call == 1 {
				close(started)
				<-release
			}
		}

		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			_, err := session.Mark(ctx)
			done <- err
		}()

		Eventually(started).Should(BeClosed())
		Expect(session.State().Running).To(BeTrue())

		_, err := session.Mark(ctx)
		Expect(err).To(MatchError(marker.ErrRunInProgress))

		close(release)
		Eventually(done).Should(Receive(BeNil()))
	})

	It("should forget inputs and the last run on reset", func() {
		session.Load(sampleEssays("a.txt"), []marker.Rubric{{Name: "r.md"}}, "g")
		_, err := session.Mark(ctx)
		Expect(err).ToNot(HaveOccurred())

		session.Reset()
		Expect(session.LastRun()).To(BeNil())
		Expect(session.Essays()).To(BeEmpty())
		Expect(session.Guidance()).To(BeEmpty())
		Expect(session.SelectedRubric()).To(BeNil())
	})
})
