package directory

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpdir/internal/core/id"
)

func TestFieldType_BoolRoundTrip(t *testing.T) {
	ft := FieldType{Kind: KindBool}
	for _, raw := range []any{true, "true", "TRUE", " 1 ", "t"} {
		stored, err := ft.Encode(raw)
		require.NoError(t, err, "raw %v", raw)
		assert.Equal(t, "true", stored)

		got, err := ft.Decode(stored)
		require.NoError(t, err)
		assert.Equal(t, true, got)
	}

	stored, err := ft.Encode(false)
	require.NoError(t, err)
	assert.Equal(t, "false", stored)

	_, err = ft.Encode("yes please")
	assert.Error(t, err)
	_, err = ft.Encode(1)
	assert.Error(t, err)
}

func TestFieldType_Encode(t *testing.T) {
	target := id.New()
	tests := []struct {
		name string
		kind Kind
		raw  any
		want string
	}{
		{"integer from float", KindInteger, float64(42), "42"},
		{"integer from json number", KindInteger, json.Number("-7"), "-7"},
		{"integer from string", KindInteger, " 15 ", "15"},
		{"decimal canonical", KindDecimal, "010.500", "10.5"},
		{"decimal from float", KindDecimal, 0.25, "0.25"},
		{"decimal value", KindDecimal, decimal.RequireFromString("3.10"), "3.1"},
		{"date", KindDate, "2024-03-01", "2024-03-01"},
		{"date from timestamp", KindDate, "2024-03-01T10:00:00Z", "2024-03-01"},
		{"datetime to utc", KindDateTime, "2024-03-01T12:00:00+02:00", "2024-03-01T10:00:00Z"},
		{"time without seconds", KindTime, "09:30", "09:30:00"},
		{"json compacts text", KindJSON, "{ \"a\" : [1, 2] }", `{"a":[1,2]}`},
		{"json marshals value", KindJSON, map[string]any{"k": "v"}, `{"k":"v"}`},
		{"relation id", KindRelation, target, target.String()},
		{"relation string", KindRelation, " " + target.String() + " ", target.String()},
		{"string", KindString, "UzAuto Motors", "UzAuto Motors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FieldType{Kind: tt.kind}.Encode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldType_EncodeRejectsWrongShape(t *testing.T) {
	tests := []struct {
		kind Kind
		raw  any
	}{
		{KindInteger, 1.5},
		{KindInteger, "twelve"},
		{KindDecimal, "1,5"},
		{KindDate, "01/03/2024"},
		{KindTime, "25:00"},
		{KindRelation, "not-an-id"},
		{KindString, 12},
		{KindBool, nil},
	}
	for _, tt := range tests {
		_, err := FieldType{Kind: tt.kind}.Encode(tt.raw)
		assert.Error(t, err, "%s %v", tt.kind, tt.raw)
	}
}

func TestFieldType_Decode(t *testing.T) {
	n, err := FieldType{Kind: KindInteger}.Decode("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	d, err := FieldType{Kind: KindDecimal}.Decode("10.5")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.5").Equal(d.(decimal.Decimal)))

	ts, err := FieldType{Kind: KindDate}.Decode("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ts)

	doc, err := FieldType{Kind: KindJSON}.Decode(`{"qty":3,"tags":["a"]}`)
	require.NoError(t, err)
	m := doc.(map[string]any)
	assert.Equal(t, json.Number("3"), m["qty"])
	assert.Equal(t, []any{"a"}, m["tags"])

	_, err = FieldType{Kind: KindInteger}.Decode("4.2")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("relation")
	require.NoError(t, err)
	assert.Equal(t, KindRelation, k)

	_, err = ParseKind("blob")
	assert.Error(t, err)
}
