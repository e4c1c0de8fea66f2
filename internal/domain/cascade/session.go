package cascade

import (
	"context"
	"slices"
	"sync"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
	"erpdir/internal/domain/directory"
)

// State of a cascading field instance.
type State int

const (
	// StateIdle: no parent selected, or the parent reveals nothing.
	StateIdle State = iota
	// StateParentSelected: a parent is chosen but its config could not be loaded.
	StateParentSelected
	// StateFieldsRevealed: at least one dependent field is visible.
	StateFieldsRevealed
)

func (s State) String() string {
	switch s {
	case StateParentSelected:
		return "parent_selected"
	case StateFieldsRevealed:
		return "fields_revealed"
	}
	return "idle"
}

// SessionConfig configures asynchronous option loading. OnOptions nil
// disables the loader.
type SessionConfig struct {
	Loader    LoaderConfig
	OnOptions func(Result)
}

// Session tracks one form's cascading field: the chosen parent, its config
// and the dependent selections. Visibility is recomputed from scratch
// after every change.
type Session struct {
	engine    *Engine
	companyID id.ID
	fieldID   id.ID
	loader    *OptionsLoader

	mu         sync.Mutex
	parent     string
	config     directory.CascadingConfig
	selections Selections
	loadErr    error
}

// NewSession starts an idle session for a relation field.
func NewSession(engine *Engine, companyID, fieldID id.ID, cfg SessionConfig) *Session {
	s := &Session{
		engine:     engine,
		companyID:  companyID,
		fieldID:    fieldID,
		config:     Disabled(),
		selections: Selections{},
	}
	if cfg.OnOptions != nil {
		s.loader = NewOptionsLoader(s.fetch, cfg.OnOptions, cfg.Loader)
	}
	return s
}

// SelectParent chooses the parent value. All dependent selections are
// discarded and the config of the new parent is loaded. An empty value
// clears the parent.
func (s *Session) SelectParent(ctx context.Context, value string) error {
	if s.loader != nil {
		s.loader.InvalidateAll()
	}

	s.mu.Lock()
	s.parent = value
	s.selections = Selections{}
	s.config = Disabled()
	s.loadErr = nil
	s.mu.Unlock()

	if value == "" {
		return nil
	}
	cfg, err := s.engine.LoadConfig(ctx, s.fieldID, value)

	s.mu.Lock()
	if s.parent != value {
		// superseded by a newer SelectParent
		s.mu.Unlock()
		return nil
	}
	s.config, s.loadErr = cfg, err
	visible := s.visibleNames()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.load(visible)
	return nil
}

// ClearParent resets the session to idle.
func (s *Session) ClearParent(ctx context.Context) {
	_ = s.SelectParent(ctx, "")
}

// Select chooses a value for a visible dependent field. Changing a value
// clears every field that transitively depends on it.
func (s *Session) Select(name, value string) error {
	if value == "" {
		s.Clear(name)
		return nil
	}

	s.mu.Lock()
	if !slices.Contains(s.visibleNames(), name) {
		s.mu.Unlock()
		return apperror.NewValidation("dependent field is not visible").WithDetail("field", name)
	}
	before := s.visibleNames()
	var cleared []string
	if s.selections[name] != value {
		cleared = s.engine.Dependents(s.config, name)
		for _, dep := range cleared {
			delete(s.selections, dep)
		}
	}
	s.selections[name] = value
	s.selections = s.engine.Prune(s.config, s.selections)
	after := s.visibleNames()
	s.mu.Unlock()

	s.refresh(before, after, cleared)
	return nil
}

// Clear removes a selection and everything that depends on it.
func (s *Session) Clear(name string) {
	s.mu.Lock()
	before := s.visibleNames()
	delete(s.selections, name)
	cleared := s.engine.Dependents(s.config, name)
	for _, dep := range cleared {
		delete(s.selections, dep)
	}
	s.selections = s.engine.Prune(s.config, s.selections)
	after := s.visibleNames()
	s.mu.Unlock()

	s.refresh(before, after, cleared)
}

// State reports the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.parent == "":
		return StateIdle
	case s.loadErr != nil:
		return StateParentSelected
	case len(s.engine.Visible(s.config, s.selections)) > 0:
		return StateFieldsRevealed
	}
	return StateIdle
}

// Err returns the field-scoped error of the last config load.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Parent returns the chosen parent value.
func (s *Session) Parent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parent
}

// Config returns the active cascading config.
func (s *Session) Config() directory.CascadingConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Visible returns the dependent fields to show, in config order.
func (s *Session) Visible() []directory.DependentField {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Visible(s.config, s.selections)
}

// Selections returns a copy of the current selections.
func (s *Session) Selections() Selections {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selections.Clone()
}

// Validate fails with FieldRequired when a visible required field is empty.
func (s *Session) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Validate(s.config, s.selections)
}

// Options resolves the options of a visible field synchronously.
func (s *Session) Options(ctx context.Context, name, search string) ([]directory.Option, error) {
	return s.fetch(ctx, name, search)
}

// Search requests options for a field through the debounced loader.
func (s *Session) Search(name, term string) {
	if s.loader != nil {
		s.loader.Search(name, term)
	}
}

// Close discards in-flight option loads.
func (s *Session) Close() {
	if s.loader != nil {
		s.loader.Close()
	}
}

func (s *Session) fetch(ctx context.Context, name, search string) ([]directory.Option, error) {
	s.mu.Lock()
	req := OptionsRequest{
		CompanyID:  s.companyID,
		Config:     s.config,
		Selections: s.selections.Clone(),
		Field:      name,
		Search:     search,
	}
	s.mu.Unlock()
	return s.engine.Options(ctx, req)
}

// visibleNames runs with s.mu held.
func (s *Session) visibleNames() []string {
	fields := s.engine.Visible(s.config, s.selections)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.FieldName
	}
	return names
}

// refresh invalidates cleared fields and loads newly revealed ones.
func (s *Session) refresh(before, after, cleared []string) {
	if s.loader == nil {
		return
	}
	for _, name := range cleared {
		s.loader.Invalidate(name)
	}
	var revealed []string
	for _, name := range after {
		if !slices.Contains(before, name) || slices.Contains(cleared, name) {
			revealed = append(revealed, name)
		}
	}
	s.load(revealed)
}

func (s *Session) load(names []string) {
	if s.loader == nil {
		return
	}
	for _, name := range names {
		s.loader.Load(name)
	}
}
