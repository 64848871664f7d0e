package resource

import (
	"reflect"
	"strings"
)

// ChangedFields compares two structs of the same type field by field and
// returns the json names of the fields that differ. Empty and nil maps or
// slices compare equal.
func ChangedFields(olds, news any) []string {
	ov := reflect.Indirect(reflect.ValueOf(olds))
	nv := reflect.Indirect(reflect.ValueOf(news))
	if ov.Type() != nv.Type() || ov.Kind() != reflect.Struct {
		return []string{"*"}
	}

	var fields []string
	t := ov.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if !fieldEqual(ov.Field(i), nv.Field(i)) {
			fields = append(fields, fieldName(f))
		}
	}
	return fields
}

func fieldEqual(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Map, reflect.Slice:
		if a.Len() == 0 && b.Len() == 0 {
			return true
		}
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

func fieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}
