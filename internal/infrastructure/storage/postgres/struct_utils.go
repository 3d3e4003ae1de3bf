package postgres

import (
	"reflect"
	"sync"
)

// columnIndex is the cached mapping of a struct type to its db columns.
type columnIndex struct {
	columns []string
	fields  [][]int // field index paths, parallel to columns
}

var columnCache sync.Map // map[reflect.Type]*columnIndex

func indexOf(t reflect.Type) *columnIndex {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.(*columnIndex)
	}

	idx := &columnIndex{}
	var walk func(t reflect.Type, path []int)
	walk = func(t reflect.Type, path []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			p := append(append([]int(nil), path...), i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("db") == "" {
				walk(f.Type, p)
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			idx.columns = append(idx.columns, tag)
			idx.fields = append(idx.fields, p)
		}
	}
	if t.Kind() == reflect.Struct {
		walk(t, nil)
	}

	columnCache.Store(t, idx)
	return idx
}

// ExtractDBColumns lists the db-tagged columns of T in declaration order.
// Embedded structs without a tag contribute their own columns.
func ExtractDBColumns[T any]() []string {
	var zero T
	return append([]string(nil), indexOf(reflect.TypeOf(zero)).columns...)
}

// StructToMap converts a struct into column/value pairs using its db tags.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	idx := indexOf(rv.Type())
	out := make(map[string]any, len(idx.columns))
	for i, col := range idx.columns {
		out[col] = rv.FieldByIndex(idx.fields[i]).Interface()
	}
	return out
}

// StructValues returns the values of columns in the given order.
func StructValues(v any, columns []string) []any {
	m := StructToMap(v)
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = m[c]
	}
	return out
}
