package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// ApplyDefaults sets zero-valued fields of the struct pointed to by target
// from their `default:"..."` tags. Nested structs are walked recursively.
// Durations accept time.ParseDuration syntax, slices are comma separated.
func ApplyDefaults(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("config: defaults target must be a non-nil pointer")
	}
	if v.Elem().Kind() != reflect.Struct {
		return errors.New("config: defaults target must point to a struct")
	}
	return applyStruct(v.Elem(), "")
}

func applyStruct(v reflect.Value, path string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		name := path + field.Name
		if fv.Kind() == reflect.Struct {
			if err := applyStruct(fv, name+"."); err != nil {
				return err
			}
			continue
		}

		tag, ok := field.Tag.Lookup("default")
		if !ok || !fv.IsZero() {
			continue
		}
		if err := setValue(fv, tag); err != nil {
			return fmt.Errorf("config: default for %s: %w", name, err)
		}
	}
	return nil
}

func setValue(v reflect.Value, s string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Slice:
		parts := strings.Split(s, ",")
		slice := reflect.MakeSlice(v.Type(), len(parts), len(parts))
		for i, part := range parts {
			if err := setValue(slice.Index(i), strings.TrimSpace(part)); err != nil {
				return err
			}
		}
		v.Set(slice)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}

// keys returns the dotted mapstructure keys of every leaf field of t.
// viper only applies AutomaticEnv to keys it already knows, so each leaf is bound explicitly.
func keys(t reflect.Type, prefix string) []string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var out []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			name = strings.ToLower(field.Name)
		}
		key := prefix + name
		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			out = append(out, keys(field.Type, key+".")...)
			continue
		}
		out = append(out, key)
	}
	return out
}
