package directory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"erpdir/internal/core/id"
)

// Kind is the value type of a directory field.
type Kind string

const (
	KindString   Kind = "string"
	KindText     Kind = "text"
	KindInteger  Kind = "integer"
	KindDecimal  Kind = "decimal"
	KindBool     Kind = "bool"
	KindDate     Kind = "date"
	KindDateTime Kind = "datetime"
	KindTime     Kind = "time"
	KindJSON     Kind = "json"
	KindFile     Kind = "file"
	KindRelation Kind = "relation"
)

// Stored formats.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = time.RFC3339Nano
	TimeLayout     = "15:04:05"
)

var kinds = map[Kind]bool{
	KindString: true, KindText: true, KindInteger: true, KindDecimal: true,
	KindBool: true, KindDate: true, KindDateTime: true, KindTime: true,
	KindJSON: true, KindFile: true, KindRelation: true,
}

// ParseKind validates a field type name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !kinds[k] {
		return "", fmt.Errorf("unknown field type %q", s)
	}
	return k, nil
}

// FieldType is the tagged variant of a field's type. Target is set only for relations.
type FieldType struct {
	Kind   Kind
	Target *id.ID
}

// String returns the kind name.
func (t FieldType) String() string { return string(t.Kind) }

// IsRelation reports whether values are record ids of the target directory.
func (t FieldType) IsRelation() bool { return t.Kind == KindRelation }

// Encode converts a raw input value to its canonical stored string.
// Every value is stored as text; Decode recovers the typed value.
func (t FieldType) Encode(raw any) (string, error) {
	switch t.Kind {
	case KindString, KindText, KindFile:
		return encodeString(raw)
	case KindInteger:
		return encodeInteger(raw)
	case KindDecimal:
		return encodeDecimal(raw)
	case KindBool:
		return encodeBool(raw)
	case KindDate:
		return encodeTime(raw, DateLayout, dateInputLayouts)
	case KindDateTime:
		return encodeTime(raw, DateTimeLayout, dateTimeInputLayouts)
	case KindTime:
		return encodeTime(raw, TimeLayout, timeInputLayouts)
	case KindJSON:
		return encodeJSON(raw)
	case KindRelation:
		return encodeRelation(raw)
	}
	return "", fmt.Errorf("unknown field type %q", t.Kind)
}

// Decode converts a stored string back to the typed value.
//
//	string/text/file -> string
//	integer          -> int64
//	decimal          -> decimal.Decimal
//	bool             -> bool
//	date, datetime   -> time.Time
//	time             -> string (HH:MM:SS)
//	json             -> any (numbers as json.Number)
//	relation         -> string (record id)
func (t FieldType) Decode(stored string) (any, error) {
	switch t.Kind {
	case KindString, KindText, KindFile, KindRelation:
		return stored, nil
	case KindInteger:
		return strconv.ParseInt(stored, 10, 64)
	case KindDecimal:
		return decimal.NewFromString(stored)
	case KindBool:
		return strconv.ParseBool(stored)
	case KindDate:
		return time.Parse(DateLayout, stored)
	case KindDateTime:
		return time.Parse(DateTimeLayout, stored)
	case KindTime:
		if _, err := time.Parse(TimeLayout, stored); err != nil {
			return nil, err
		}
		return stored, nil
	case KindJSON:
		dec := json.NewDecoder(strings.NewReader(stored))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown field type %q", t.Kind)
}

var errWrongShape = errors.New("value has the wrong shape")

func encodeString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", errWrongShape
}

func encodeInteger(raw any) (string, error) {
	switch v := raw.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) > 1<<53 {
			return "", errWrongShape
		}
		return strconv.FormatInt(int64(v), 10), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return "", errWrongShape
		}
		return strconv.FormatInt(n, 10), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return "", errWrongShape
		}
		return strconv.FormatInt(n, 10), nil
	}
	return "", errWrongShape
}

func encodeDecimal(raw any) (string, error) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case decimal.Decimal:
		d = v
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", errWrongShape
		}
		d = decimal.NewFromFloat(v)
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return "", errWrongShape
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return "", errWrongShape
		}
		d = parsed
	default:
		return "", errWrongShape
	}
	return d.String(), nil
}

func encodeBool(raw any) (string, error) {
	switch v := raw.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return "", errWrongShape
		}
		return strconv.FormatBool(b), nil
	}
	return "", errWrongShape
}

var (
	dateInputLayouts     = []string{DateLayout, time.RFC3339Nano}
	dateTimeInputLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", DateLayout}
	timeInputLayouts     = []string{TimeLayout, "15:04", "15:04:05.999999999"}
)

func encodeTime(raw any, layout string, inputs []string) (string, error) {
	switch v := raw.(type) {
	case time.Time:
		if layout == DateTimeLayout {
			v = v.UTC()
		}
		return v.Format(layout), nil
	case string:
		s := strings.TrimSpace(v)
		for _, in := range inputs {
			if parsed, err := time.Parse(in, s); err == nil {
				if layout == DateTimeLayout {
					parsed = parsed.UTC()
				}
				return parsed.Format(layout), nil
			}
		}
	}
	return "", errWrongShape
}

func encodeJSON(raw any) (string, error) {
	if s, ok := raw.(string); ok && json.Valid([]byte(s)) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(s)); err != nil {
			return "", errWrongShape
		}
		return buf.String(), nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", errWrongShape
	}
	return string(b), nil
}

// Relation values are record ids. Existence of the target is not checked
// here so records can be imported in any order.
func encodeRelation(raw any) (string, error) {
	switch v := raw.(type) {
	case id.ID:
		return v.String(), nil
	case string:
		parsed, err := id.Parse(strings.TrimSpace(v))
		if err != nil {
			return "", errWrongShape
		}
		return parsed.String(), nil
	}
	return "", errWrongShape
}
