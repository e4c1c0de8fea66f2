package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookRegistry_StopsOnError(t *testing.T) {
	r := NewHookRegistry[string]()
	var calls []string
	r.On(AfterCreate, func(_ context.Context, s string) error {
		calls = append(calls, "first:"+s)
		return errors.New("stop")
	})
	r.On(AfterCreate, func(_ context.Context, s string) error {
		calls = append(calls, "second:"+s)
		return nil
	})

	err := r.Run(context.Background(), AfterCreate, "rec")
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"first:rec"}, calls)
	assert.NoError(t, r.Run(context.Background(), BeforeDelete, "rec"))
}
