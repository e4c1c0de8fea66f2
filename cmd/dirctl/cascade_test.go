package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairs(t *testing.T) {
	got, err := pairs([]string{"region=abc", "city=a=b", "note="})
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"region", "abc"}, {"city", "a=b"}, {"note", ""}}, got)

	_, err = pairs([]string{"region"})
	assert.Error(t, err)

	_, err = pairs([]string{"=x"})
	assert.Error(t, err)
}
