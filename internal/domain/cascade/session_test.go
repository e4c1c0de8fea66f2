package cascade

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/apperror"
	"erpdir/internal/core/id"
)

func TestSession_ChainResetsOnChange(t *testing.T) {
	w := newPaymentsWorld(t)
	ctx := context.Background()
	s := NewSession(w.engine, w.company, w.paymentType.ID, SessionConfig{})
	defer s.Close()

	assert.Equal(t, StateIdle, s.State())
	require.NoError(t, s.SelectParent(ctx, w.chain.ID.String()))
	assert.Equal(t, StateFieldsRevealed, s.State())
	assert.Equal(t, []string{"A"}, names(s.Visible()))

	require.NoError(t, s.Select("A", "a1"))
	require.NoError(t, s.Select("B", "b1"))
	require.NoError(t, s.Select("C", "c1"))
	assert.Equal(t, []string{"A", "B", "C"}, names(s.Visible()))

	require.NoError(t, s.Select("A", "a2"))
	assert.Equal(t, []string{"A", "B"}, names(s.Visible()))
	assert.Equal(t, Selections{"A": "a2"}, s.Selections())

	// reselecting the same value keeps downstream choices
	require.NoError(t, s.Select("B", "b2"))
	require.NoError(t, s.Select("A", "a2"))
	assert.Equal(t, Selections{"A": "a2", "B": "b2"}, s.Selections())

	err := s.Select("C", "c1")
	require.NoError(t, err)
	s.Clear("B")
	assert.Equal(t, Selections{"A": "a2"}, s.Selections())
	assert.Equal(t, []string{"A", "B"}, names(s.Visible()))
}

func TestSession_ParentChangeDiscardsEverything(t *testing.T) {
	w := newPaymentsWorld(t)
	ctx := context.Background()
	s := NewSession(w.engine, w.company, w.paymentType.ID, SessionConfig{})
	defer s.Close()

	require.NoError(t, s.SelectParent(ctx, w.rawMaterialPurchase.ID.String()))
	require.NoError(t, s.Select("inventory", w.electronics.ID.String()))
	assert.Equal(t, []string{"inventory", "raw_material"}, names(s.Visible()))

	require.NoError(t, s.SelectParent(ctx, w.salary.ID.String()))
	assert.Empty(t, s.Selections())
	assert.Equal(t, []string{"department"}, names(s.Visible()))

	err := s.Select("inventory", w.electronics.ID.String())
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "field of the previous chain")

	require.NoError(t, s.SelectParent(ctx, w.plain.ID.String()))
	assert.Equal(t, StateIdle, s.State(), "a parent without config stays idle")
	assert.Empty(t, s.Visible())

	s.ClearParent(ctx)
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.Parent())
}

func TestSession_Validate(t *testing.T) {
	w := newPaymentsWorld(t)
	ctx := context.Background()
	s := NewSession(w.engine, w.company, w.paymentType.ID, SessionConfig{})
	defer s.Close()

	require.NoError(t, s.Validate(), "idle session has nothing to require")

	require.NoError(t, s.SelectParent(ctx, w.rawMaterialPurchase.ID.String()))
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeFieldRequired))

	require.NoError(t, s.Select("inventory", w.textiles.ID.String()))
	assert.True(t, apperror.HasCode(s.Validate(), apperror.CodeFieldRequired), "raw material now visible and empty")

	opts, err := s.Options(ctx, "raw_material", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cotton", "silk"}, labels(opts))
	require.NoError(t, s.Select("raw_material", opts[0].ID.String()))
	assert.NoError(t, s.Validate())
}

func TestSession_LoadErrorIsFieldScoped(t *testing.T) {
	w := newPaymentsWorld(t)
	s := NewSession(w.engine, w.company, id.New(), SessionConfig{})
	defer s.Close()

	err := s.SelectParent(context.Background(), w.salary.ID.String())
	require.Error(t, err)
	assert.Equal(t, StateParentSelected, s.State())
	assert.Error(t, s.Err())
	assert.Empty(t, s.Visible())
}

func TestSession_LoadsRevealedFields(t *testing.T) {
	w := newPaymentsWorld(t)
	ctx := context.Background()

	var mu sync.Mutex
	got := map[string][]string{}
	s := NewSession(w.engine, w.company, w.paymentType.ID, SessionConfig{
		OnOptions: func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			if r.Err == nil {
				got[r.Field] = labels(r.Options)
			}
		},
	})
	defer s.Close()

	seen := func(field string) []string {
		mu.Lock()
		defer mu.Unlock()
		return got[field]
	}

	require.NoError(t, s.SelectParent(ctx, w.rawMaterialPurchase.ID.String()))
	require.Eventually(t, func() bool { return len(seen("inventory")) == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, seen("raw_material"))

	require.NoError(t, s.Select("inventory", w.electronics.ID.String()))
	require.Eventually(t, func() bool { return len(seen("raw_material")) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"circuits", "sensors"}, seen("raw_material"))
}
