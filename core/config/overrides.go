package config

import "reflect"

// ApplyOverrides lays a partial configuration over the active one and swaps
// the result in. Zero-valued fields in the partial are treated as unset and
// leave the active value alone, so callers only populate what they mean to
// change. An invalid result leaves the active configuration untouched.
func (m *Manager) ApplyOverrides(partial *Config) error {
	if partial == nil {
		return nil
	}

	merged := *m.Get()
	overlayStruct(reflect.ValueOf(&merged).Elem(), reflect.ValueOf(partial).Elem())

	if err := merged.Validate(); err != nil {
		return err
	}

	m.current.Store(&merged)
	m.notifyWatchers(&merged)
	return nil
}

// overlayStruct walks the fixed Config shape: nested section structs and
// scalar leaves. Non-zero source leaves replace destination leaves.
func overlayStruct(dst, src reflect.Value) {
	for i := 0; i < dst.NumField(); i++ {
		dstField := dst.Field(i)
		srcField := src.Field(i)

		if dstField.Kind() == reflect.Struct {
			overlayStruct(dstField, srcField)
			continue
		}
		if !isZeroValue(srcField) {
			dstField.Set(srcField)
		}
	}
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	default:
		return false
	}
}
