package marker

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Input file extensions
const (
	EssayExt  = ".txt"
	RubricExt = ".md"
)

// LoadEssays loads every *.txt file in dir, sorted by file name. Each essay
// is named after its file. A missing folder logs a warning and yields no
// essays; unreadable files are logged and skipped.
func LoadEssays(fsys afero.Fs, dir string) ([]Essay, error) {
	files, err := loadFolder(fsys, dir, EssayExt, "essay")
	if err != nil {
		return nil, err
	}

	essays := make([]Essay, 0, len(files))
	for _, f := range files {
		essays = append(essays, Essay{Name: f.name, Text: f.text})
	}
	return essays, nil
}

// LoadRubrics loads every *.md file in dir, sorted by file name
func LoadRubrics(fsys afero.Fs, dir string) ([]Rubric, error) {
	files, err := loadFolder(fsys, dir, RubricExt, "rubric")
	if err != nil {
		return nil, err
	}

	rubrics := make([]Rubric, 0, len(files))
	for _, f := range files {
		rubrics = append(rubrics, Rubric{Name: f.name, Text: f.text})
	}
	return rubrics, nil
}

// LoadGuidance reads the feedback guidance file. A missing or unreadable
// file logs and yields an empty guidance string.
func LoadGuidance(fsys afero.Fs, path string) string {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		if isNotExist(err) {
			slog.Warn("Feedback guidance file not found", "path", path)
		} else {
			slog.Error("Error loading feedback guidance", "path", path, "error", err)
		}
		return ""
	}

	slog.Info("Loaded feedback guidance", "path", path)
	return string(raw)
}

type loadedFile struct {
	name string
	text string
}

func loadFolder(fsys afero.Fs, dir, ext, kind string) ([]loadedFile, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if isNotExist(err) {
			slog.Warn("Folder not found", "kind", kind, "path", dir)
			return []loadedFile{}, nil
		}
		return nil, fmt.Errorf("failed to read %s folder %s: %w", kind, dir, err)
	}

	files := make([]loadedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raw, err := afero.ReadFile(fsys, path)
		if err != nil {
			slog.Error("Error loading file", "kind", kind, "path", path, "error", err)
			continue
		}

		slog.Info("Loaded file", "kind", kind, "name", entry.Name())
		files = append(files, loadedFile{name: entry.Name(), text: string(raw)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}
