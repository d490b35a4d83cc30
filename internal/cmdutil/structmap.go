package cmdutil

import (
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode"
)

var timeType = reflect.TypeFor[time.Time]()

// StructToMapOptions configures StructToMap behavior.
type StructToMapOptions struct {
	// Omit lists Go field names that are left out of the row
	Omit []string
	// TimeLayout formats time.Time values; empty uses RFC 3339
	TimeLayout string
}

// StructToMap flattens the exported fields of a struct into a row keyed by
// column name. A `db:"name"` tag sets the column, `db:"-"` skips the field,
// and untagged fields use their snake_case name. Nil pointers become nil.
func StructToMap[T any](value T, opts StructToMapOptions) map[string]any {
	row := make(map[string]any)

	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return row
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return row
	}

	collectColumns(v, row, opts)
	return row
}

func collectColumns(v reflect.Value, row map[string]any, opts StructToMapOptions) {
	t := v.Type()
	for i := range t.NumField() {
		field, value := t.Field(i), v.Field(i)
		if !field.IsExported() || slices.Contains(opts.Omit, field.Name) {
			continue
		}
		if field.Anonymous && value.Kind() == reflect.Struct {
			collectColumns(value, row, opts)
			continue
		}

		column := field.Tag.Get("db")
		switch column {
		case "-":
			continue
		case "":
			column = toSnakeCase(field.Name)
		}
		row[column] = columnValue(value, opts.TimeLayout)
	}
}

func columnValue(value reflect.Value, layout string) any {
	if value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}

	if value.Type() == timeType {
		if layout == "" {
			layout = time.RFC3339
		}
		return value.Interface().(time.Time).Format(layout)
	}
	return value.Interface()
}

// toSnakeCase splits on lower-to-upper transitions and at the last capital
// of an acronym: ISBN13 -> isbn13, CoverImage -> cover_image, HTTPServer -> http_server.
func toSnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(runes) + 4)

	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
