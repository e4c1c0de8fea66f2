// Package filter describes record selection predicates over directory values.
package filter

import "fmt"

// ComparisonType определяет виды сравнения.
type ComparisonType string

const (
	Equal       ComparisonType = "eq"        // Равно
	NotEqual    ComparisonType = "neq"       // Не равно
	InList      ComparisonType = "in"        // В списке
	NotInList   ComparisonType = "nin"       // Не в списке
	Contains    ComparisonType = "contains"  // Содержит (ILIKE %val%)
	NotContains ComparisonType = "ncontains" // Не содержит (NOT ILIKE %val%)

	IsNull    ComparisonType = "null"     // Не заполнено
	IsNotNull ComparisonType = "not_null" // Заполнено
)

// ParentValueField addresses the record's parentValue metadata instead of a field value.
const ParentValueField = "@parentValue"

// Item представляет одну строку отбора.
// Field is a directory field name (or ParentValueField); values are compared
// against their canonical stored string.
type Item struct {
	Field    string         `json:"field"`
	Operator ComparisonType `json:"operator"`
	Value    any            `json:"value"`
}

// Validate checks that the operator is known and the value has the right shape.
func (i Item) Validate() error {
	if i.Field == "" {
		return fmt.Errorf("filter field is empty")
	}
	switch i.Operator {
	case Equal, NotEqual, Contains, NotContains:
		if _, ok := i.Value.(string); !ok {
			return fmt.Errorf("filter %s on %q expects a string value", i.Operator, i.Field)
		}
	case InList, NotInList:
		if _, err := i.Strings(); err != nil {
			return err
		}
	case IsNull, IsNotNull:
	default:
		return fmt.Errorf("unsupported filter operator %q", i.Operator)
	}
	return nil
}

// Strings returns the list operand of in/nin filters.
func (i Item) Strings() ([]string, error) {
	switch v := i.Value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("filter %s on %q expects strings", i.Operator, i.Field)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("filter %s on %q expects a list", i.Operator, i.Field)
}
