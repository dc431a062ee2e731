package marker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/afero"
)

// Session holds the inputs an operator has loaded and the outcome of the last
// run. It is safe for concurrent use and allows one run at a time.
type Session struct {
	marker *Marker

	mu       sync.RWMutex
	essays   []Essay
	rubrics  []Rubric
	guidance string
	selected string
	lastRun  *Run
	running  bool
}

// SessionState is a snapshot of a Session
type SessionState struct {
	Essays         []string `json:"essays"`
	Rubrics        []string `json:"rubrics"`
	SelectedRubric string   `json:"selected_rubric"`
	HasGuidance    bool     `json:"has_guidance"`
	Running        bool     `json:"running"`
	LastRunID      string   `json:"last_run_id,omitempty"`
}

// NewSession creates an empty session that marks with m
func NewSession(m *Marker) *Session {
	return &Session{marker: m}
}

// Load replaces the session inputs. The first rubric is selected.
func (s *Session) Load(essays []Essay, rubrics []Rubric, guidance string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.essays = append([]Essay(nil), essays...)
	s.rubrics = append([]Rubric(nil), rubrics...)
	s.guidance = guidance
	s.selected = ""
	if len(s.rubrics) > 0 {
		s.selected = s.rubrics[0].Name
	}

	slog.Info("Session inputs loaded",
		"essays", len(s.essays),
		"rubrics", len(s.rubrics),
		"guidance_chars", len(s.guidance))
}

// LoadFolders loads essays, rubrics and guidance from disk into the session
func (s *Session) LoadFolders(fsys afero.Fs, essaysDir, rubricDir, guidancePath string) error {
	essays, err := LoadEssays(fsys, essaysDir)
	if err != nil {
		return err
	}
	rubrics, err := LoadRubrics(fsys, rubricDir)
	if err != nil {
		return err
	}
	s.Load(essays, rubrics, LoadGuidance(fsys, guidancePath))
	return nil
}

// SelectRubric chooses the rubric used by the next run
func (s *Session) SelectRubric(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if findRubric(s.rubrics, name) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRubric, name)
	}
	s.selected = name
	return nil
}

// Mark runs the marker over the loaded essays with the selected rubric.
// It returns ErrRunInProgress when another run has not finished.
func (s *Session) Mark(ctx context.Context, opts ...RunOption) (*Run, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	essays := s.essays
	rubric := findRubric(s.rubrics, s.selected)
	guidance := s.guidance
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	run, err := s.marker.Run(ctx, essays, rubric, guidance, opts...)
	if run != nil {
		s.mu.Lock()
		s.lastRun = run
		s.mu.Unlock()
	}
	return run, err
}

// LastRun returns the most recent run, or nil
func (s *Session) LastRun() *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

// Essays returns the loaded essays
func (s *Session) Essays() []Essay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Essay(nil), s.essays...)
}

// Guidance returns the loaded feedback guidance
func (s *Session) Guidance() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guidance
}

// SelectedRubric returns the rubric the next run will use, or nil
func (s *Session) SelectedRubric() *Rubric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findRubric(s.rubrics, s.selected)
}

// State returns a snapshot of the session
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := SessionState{
		Essays:         make([]string, 0, len(s.essays)),
		Rubrics:        make([]string, 0, len(s.rubrics)),
		SelectedRubric: s.selected,
		HasGuidance:    s.guidance != "",
		Running:        s.running,
	}
	for _, e := range s.essays {
		state.Essays = append(state.Essays, e.Name)
	}
	for _, r := range s.rubrics {
		state.Rubrics = append(state.Rubrics, r.Name)
	}
	if s.lastRun != nil {
		state.LastRunID = s.lastRun.ID
	}
	return state
}

// Reset discards loaded inputs and the last run. A run in progress keeps going.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.essays = nil
	s.rubrics = nil
	s.guidance = ""
	s.selected = ""
	s.lastRun = nil
}

func findRubric(rubrics []Rubric, name string) *Rubric {
	for i := range rubrics {
		if rubrics[i].Name == name {
			r := rubrics[i]
			return &r
		}
	}
	return nil
}
