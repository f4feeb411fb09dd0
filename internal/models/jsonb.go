package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB columns are stored as JSON documents. Each type below implements
// sql.Scanner and driver.Valuer through these helpers. Values are sent as
// strings because lib/pq encodes []byte parameters as bytea.

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}

// Value implements driver.Valuer
func (c FieldChanges) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return jsonValue(c)
}

// Scan implements sql.Scanner
func (c *FieldChanges) Scan(src any) error { return scanJSON(src, c) }

// StringList is a JSON array of strings
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return jsonValue([]string(l))
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src any) error { return scanJSON(src, (*[]string)(l)) }

// ScoreMap maps criterion id to the awarded score
type ScoreMap map[string]float64

// Value implements driver.Valuer
func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return jsonValue(map[string]float64(m))
}

// Scan implements sql.Scanner
func (m *ScoreMap) Scan(src any) error { return scanJSON(src, (*map[string]float64)(m)) }

// CommentMap maps criterion id to a reviewer comment
type CommentMap map[string]string

// Value implements driver.Valuer
func (m CommentMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return jsonValue(map[string]string(m))
}

// Scan implements sql.Scanner
func (m *CommentMap) Scan(src any) error { return scanJSON(src, (*map[string]string)(m)) }

// Value implements driver.Valuer
func (r Rubric) Value() (driver.Value, error) { return jsonValue(r) }

// Scan implements sql.Scanner
func (r *Rubric) Scan(src any) error { return scanJSON(src, r) }

// CategorySnapshot is the copy of a Category stored on a project at creation
type CategorySnapshot Category

// Value implements driver.Valuer
func (c CategorySnapshot) Value() (driver.Value, error) { return jsonValue(Category(c)) }

// Scan implements sql.Scanner
func (c *CategorySnapshot) Scan(src any) error { return scanJSON(src, (*Category)(c)) }
