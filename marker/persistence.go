package marker

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FeedbackStore writes and reads feedback files in a single output directory
type FeedbackStore struct {
	fs  afero.Fs
	dir string
}

// NewFeedbackStore creates a store rooted at dir. An empty dir means DefaultOutputDir.
func NewFeedbackStore(fsys afero.Fs, dir string) *FeedbackStore {
	if dir == "" {
		dir = DefaultOutputDir
	}
	return &FeedbackStore{fs: fsys, dir: dir}
}

// Dir returns the output directory
func (s *FeedbackStore) Dir() string {
	return s.dir
}

// FeedbackPath returns where feedback for essayName is stored: the essay's
// base name with its extension replaced by FeedbackSuffix.
func (s *FeedbackStore) FeedbackPath(essayName string) string {
	return filepath.Join(s.dir, feedbackBaseName(essayName)+FeedbackSuffix)
}

// ClassSummaryPath returns where the class summary is stored
func (s *FeedbackStore) ClassSummaryPath() string {
	return filepath.Join(s.dir, ClassSummaryFileName)
}

// SaveFeedback writes text for essayName, replacing any earlier feedback
func (s *FeedbackStore) SaveFeedback(essayName, text string) (string, error) {
	if feedbackBaseName(essayName) == "" {
		return "", &PersistenceError{Path: s.dir, Err: ErrUnnamedEssay}
	}
	path := s.FeedbackPath(essayName)
	return path, s.write(path, text)
}

// SaveClassSummary writes the class summary, overwriting any previous run's file
func (s *FeedbackStore) SaveClassSummary(text string) (string, error) {
	path := s.ClassSummaryPath()
	return path, s.write(path, text)
}

func (s *FeedbackStore) write(path, text string) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return &PersistenceError{Path: s.dir, Err: fmt.Errorf("failed to create output directory: %w", err)}
	}
	if err := afero.WriteFile(s.fs, path, []byte(text), 0o644); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

// ReadFeedback returns the stored feedback for essayName. Both the original
// file name and the base names returned by ListFeedback are accepted.
func (s *FeedbackStore) ReadFeedback(essayName string) (string, error) {
	listed := filepath.Join(s.dir, filepath.Base(strings.TrimSpace(essayName))+FeedbackSuffix)
	if ok, _ := afero.Exists(s.fs, listed); ok {
		return s.read(listed)
	}
	return s.read(s.FeedbackPath(essayName))
}

// ReadClassSummary returns the stored class summary
func (s *FeedbackStore) ReadClassSummary() (string, error) {
	return s.read(s.ClassSummaryPath())
}

func (s *FeedbackStore) read(path string) (string, error) {
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", &PersistenceError{Path: path, Err: err}
	}
	return string(raw), nil
}

// ListFeedback returns the base names of all stored essay feedback, sorted.
// A missing output directory yields an empty list.
func (s *FeedbackStore) ListFeedback() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if isNotExist(err) {
			return []string{}, nil
		}
		return nil, &PersistenceError{Path: s.dir, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FeedbackSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), FeedbackSuffix))
	}
	sort.Strings(names)
	return names, nil
}

func feedbackBaseName(essayName string) string {
	base := filepath.Base(strings.TrimSpace(essayName))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return ""
	}
	// A dot-file such as ".txt" has no extension to strip.
	ext := filepath.Ext(base)
	if ext == base {
		return base
	}
	return strings.TrimSuffix(base, ext)
}
