package cascade

import (
	"context"
	"sync"
	"time"

	"erpdir/internal/domain/directory"
)

// FetchFunc loads the options of one field for a search term.
type FetchFunc func(ctx context.Context, field, search string) ([]directory.Option, error)

// Result is a completed options fetch. Err is scoped to Field; the rest of
// the form stays usable.
type Result struct {
	Field   string
	Search  string
	Options []directory.Option
	Err     error
}

// LoaderConfig holds the search-as-you-type knobs.
type LoaderConfig struct {
	Debounce        time.Duration
	MinSearchLength int
}

// OptionsLoader issues option fetches per field and delivers only the
// newest response of each field. Search terms are debounced; terms shorter
// than MinSearchLength (but not empty) issue no call. After Close nothing
// is delivered.
type OptionsLoader struct {
	fetch   FetchFunc
	deliver func(Result)
	cfg     LoaderConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	tokens map[string]uint64
	timers map[string]*time.Timer
	closed bool
}

// NewOptionsLoader creates a loader. deliver is called with the loader's
// lock held and must not call back into the loader.
func NewOptionsLoader(fetch FetchFunc, deliver func(Result), cfg LoaderConfig) *OptionsLoader {
	ctx, cancel := context.WithCancel(context.Background())
	return &OptionsLoader{
		fetch:   fetch,
		deliver: deliver,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		tokens:  make(map[string]uint64),
		timers:  make(map[string]*time.Timer),
	}
}

// Load fetches the unfiltered options of a field right away.
func (l *OptionsLoader) Load(field string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.stopTimer(field)
	l.start(field, "", l.next(field))
}

// Search schedules a fetch once input has settled for the debounce interval.
func (l *OptionsLoader) Search(field, term string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.stopTimer(field)
	token := l.next(field)
	if term != "" && len([]rune(term)) < l.cfg.MinSearchLength {
		return
	}
	if l.cfg.Debounce <= 0 {
		l.start(field, term, token)
		return
	}
	l.timers[field] = time.AfterFunc(l.cfg.Debounce, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed || l.tokens[field] != token {
			return
		}
		delete(l.timers, field)
		l.start(field, term, token)
	})
}

// Invalidate drops any pending or in-flight result of a field.
func (l *OptionsLoader) Invalidate(field string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimer(field)
	l.next(field)
}

// InvalidateAll drops every pending or in-flight result.
func (l *OptionsLoader) InvalidateAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for field := range l.tokens {
		l.stopTimer(field)
		l.next(field)
	}
}

// Close stops timers, cancels in-flight fetches and waits for them.
func (l *OptionsLoader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	for field := range l.timers {
		l.stopTimer(field)
	}
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}

func (l *OptionsLoader) next(field string) uint64 {
	l.tokens[field]++
	return l.tokens[field]
}

func (l *OptionsLoader) stopTimer(field string) {
	if t, ok := l.timers[field]; ok {
		t.Stop()
		delete(l.timers, field)
	}
}

// start runs with l.mu held.
func (l *OptionsLoader) start(field, search string, token uint64) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		opts, err := l.fetch(l.ctx, field, search)

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed || l.tokens[field] != token {
			return
		}
		l.deliver(Result{Field: field, Search: search, Options: opts, Err: err})
	}()
}
