package marker_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/JohnPlummer/essay-marker/marker"
)

var _ = Describe("Loaders", func() {
	var fs afero.Fs

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		Expect(afero.WriteFile(fs, "essays/b.txt", []byte("Essay B"), 0o644)).To(Succeed())
		Expect(afero.WriteFile(fs, "essays/a.txt", []byte("Essay A"), 0o644)).To(Succeed())
		Expect(afero.WriteFile(fs, "essays/notes.md", []byte("not an essay"), 0o644)).To(Succeed())
		Expect(fs.MkdirAll("essays/archive.txt", 0o755)).To(Succeed())
		Expect(afero.WriteFile(fs, "rubric/history.md", []byte("# History rubric"), 0o644)).To(Succeed())
		Expect(afero.WriteFile(fs, "rubric/english.md", []byte("# English rubric"), 0o644)).To(Succeed())
		Expect(afero.WriteFile(fs, "feedback_guidance.md", []byte("Be constructive."), 0o644)).To(Succeed())
	})

	Describe("LoadEssays", func() {
		It("should load text files sorted by name", func() {
			essays, err := marker.LoadEssays(fs, "essays")
			Expect(err).ToNot(HaveOccurred())
			Expect(essays).To(Equal([]marker.Essay{
				{Name: "a.txt", Text: "Essay A"},
				{Name: "b.txt", Text: "Essay B"},
			}))
		})

		It("should return no essays for a missing folder", func() {
			essays, err := marker.LoadEssays(fs, "missing")
			Expect(err).ToNot(HaveOccurred())
			Expect(essays).To(BeEmpty())
		})
	})

	Describe("LoadRubrics", func() {
		It("should load markdown files sorted by name", func() {
			rubrics, err := marker.LoadRubrics(fs, "rubric")
			Expect(err).ToNot(HaveOccurred())
			Expect(rubrics).To(HaveLen(2))
			Expect(rubrics[0].Name).To(Equal("english.md"))
			Expect(rubrics[1].Text).To(Equal("# History rubric"))
		})
	})

	Describe("LoadGuidance", func() {
		It("should read the guidance file", func() {
			Expect(marker.LoadGuidance(fs, "feedback_guidance.md")).To(Equal("Be constructive."))
		})

		It("should return empty guidance for a missing file", func() {
			Expect(marker.LoadGuidance(fs, "nope.md")).To(BeEmpty())
		})
	})
})
