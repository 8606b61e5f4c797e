package forms

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldRating   FieldType = "rating"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
)

const (
	MinRating = 1
	MaxRating = 5
)

type Field struct {
	Key      string    `json:"key" validate:"required,max=64"`
	Label    string    `json:"label" validate:"max=200"`
	Type     FieldType `json:"type" validate:"required,oneof=text textarea number rating select checkbox"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

// FieldError describes the first problem found in a field list or answer set.
type FieldError struct {
	Key    string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Key == "" {
		return e.Reason
	}
	return e.Key + ": " + e.Reason
}

func Decode(raw []byte) ([]Field, error) {
	if len(raw) == 0 {
		return []Field{}, nil
	}
	var fields []Field
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []Field{}
	}
	return fields, nil
}

func Encode(fields []Field) ([]byte, error) {
	if fields == nil {
		fields = []Field{}
	}
	return json.Marshal(fields)
}

func ValidateFields(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			return &FieldError{Reason: "missing_key"}
		}
		if _, ok := seen[key]; ok {
			return &FieldError{Key: key, Reason: "duplicate_key"}
		}
		seen[key] = struct{}{}
		switch field.Type {
		case FieldText, FieldTextarea, FieldNumber, FieldRating, FieldCheckbox:
		case FieldSelect:
			if len(field.Options) == 0 {
				return &FieldError{Key: key, Reason: "missing_options"}
			}
		default:
			return &FieldError{Key: key, Reason: "unknown_type"}
		}
	}
	return nil
}

// ValidateAnswers checks answers decoded from JSON against the field list.
func ValidateAnswers(fields []Field, answers map[string]interface{}) error {
	byKey := make(map[string]Field, len(fields))
	for _, field := range fields {
		byKey[field.Key] = field
	}
	for key := range answers {
		if _, ok := byKey[key]; !ok {
			return &FieldError{Key: key, Reason: "unknown_field"}
		}
	}
	for _, field := range fields {
		value, ok := answers[field.Key]
		if !ok || isBlank(value) {
			if field.Required {
				return &FieldError{Key: field.Key, Reason: "required"}
			}
			continue
		}
		if err := validateValue(field, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(field Field, value interface{}) error {
	switch field.Type {
	case FieldText, FieldTextarea:
		if _, ok := value.(string); !ok {
			return &FieldError{Key: field.Key, Reason: "expected_text"}
		}
	case FieldNumber:
		if _, ok := numeric(value); !ok {
			return &FieldError{Key: field.Key, Reason: "expected_number"}
		}
	case FieldRating:
		n, ok := numeric(value)
		if !ok || n != math.Trunc(n) || n < MinRating || n > MaxRating {
			return &FieldError{Key: field.Key, Reason: "rating_out_of_range"}
		}
	case FieldSelect:
		s, ok := value.(string)
		if !ok || !containsString(field.Options, s) {
			return &FieldError{Key: field.Key, Reason: "invalid_option"}
		}
	case FieldCheckbox:
		switch v := value.(type) {
		case bool:
		case []interface{}:
			for _, item := range v {
				s, ok := item.(string)
				if !ok || (len(field.Options) > 0 && !containsString(field.Options, s)) {
					return &FieldError{Key: field.Key, Reason: "invalid_option"}
				}
			}
		default:
			return &FieldError{Key: field.Key, Reason: "expected_checkbox"}
		}
	}
	return nil
}

// FieldStats aggregates a numeric or rating field over submitted responses.
type FieldStats struct {
	Key     string    `json:"key"`
	Label   string    `json:"label"`
	Type    FieldType `json:"type"`
	Count   int       `json:"count"`
	Average float64   `json:"average"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
}

// Aggregate computes per-field statistics. Unparseable responses are skipped.
func Aggregate(fields []Field, responses [][]byte) []FieldStats {
	out := make([]FieldStats, 0, len(fields))
	index := make(map[string]int, len(fields))
	sums := make([]float64, 0, len(fields))
	for _, field := range fields {
		if field.Type != FieldNumber && field.Type != FieldRating {
			continue
		}
		index[field.Key] = len(out)
		out = append(out, FieldStats{Key: field.Key, Label: field.Label, Type: field.Type})
		sums = append(sums, 0)
	}
	for _, raw := range responses {
		var answers map[string]interface{}
		if err := json.Unmarshal(raw, &answers); err != nil {
			continue
		}
		for key, value := range answers {
			i, ok := index[key]
			if !ok {
				continue
			}
			n, ok := numeric(value)
			if !ok {
				continue
			}
			stats := &out[i]
			if stats.Count == 0 || n < stats.Min {
				stats.Min = n
			}
			if stats.Count == 0 || n > stats.Max {
				stats.Max = n
			}
			stats.Count++
			sums[i] += n
		}
	}
	for i := range out {
		if out[i].Count > 0 {
			out[i].Average = math.Round(sums[i]/float64(out[i].Count)*100) / 100
		}
	}
	return out
}

// Transcript renders answers as "Label: value" lines in field order, which is
// the input handed to the summarizer.
func Transcript(fields []Field, answers map[string]interface{}) string {
	var b strings.Builder
	known := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		known[field.Key] = struct{}{}
		value, ok := answers[field.Key]
		if !ok || isBlank(value) {
			continue
		}
		label := field.Label
		if label == "" {
			label = field.Key
		}
		writeLine(&b, label, value)
	}
	extra := make([]string, 0)
	for key := range answers {
		if _, ok := known[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		if !isBlank(answers[key]) {
			writeLine(&b, key, answers[key])
		}
	}
	return strings.TrimSpace(b.String())
}

func writeLine(b *strings.Builder, label string, value interface{}) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(formatValue(value))
	b.WriteString("\n")
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func numeric(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func isBlank(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	default:
		return false
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
