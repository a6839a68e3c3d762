package config

import (
	"encoding"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// Loader loads configuration from a file into target
type Loader func(path string, target interface{}) error

// Validator validates configuration
type Validator interface {
	Validate(config interface{}) error
}

// ValidatorFunc is a function that validates configuration
type ValidatorFunc func(config interface{}) error

func (f ValidatorFunc) Validate(config interface{}) error {
	return f(config)
}

// loaders maps file extensions to their decoders
var loaders = map[string]Loader{
	".yaml": LoadYAML,
	".yml":  LoadYAML,
	".json": LoadJSON,
	".toml": LoadTOML,
}

// Load loads configuration from a file (YAML, JSON or TOML)
// Automatically detects file type by extension; unknown extensions are read as YAML
func Load(path string, target interface{}) error {
	loader, ok := loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		loader = LoadYAML
	}
	return loader(path, target)
}

// ApplyEnvOverrides applies environment variable overrides to configuration struct
// Uses reflection to set struct fields from environment variables. The variable name
// segment of a field is its yaml tag name when present, otherwise the field name.
func ApplyEnvOverrides(prefix string, target interface{}) error {
	if prefix == "" {
		prefix = "APP"
	}

	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to a struct")
	}

	return applyEnvToStruct(prefix, val.Elem())
}

// envName returns the env segment for a struct field
func envName(field reflect.StructField) string {
	name := field.Name
	if tag, ok := field.Tag.Lookup("yaml"); ok {
		if tagName := strings.Split(tag, ",")[0]; tagName != "" && tagName != "-" {
			name = tagName
		}
	}
	return strings.ReplaceAll(strings.ToUpper(name), "-", "_")
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// applyEnvToStruct recursively applies environment variables to struct fields
func applyEnvToStruct(prefix string, val reflect.Value) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Skip unexported fields
		if !field.CanSet() {
			continue
		}

		envKey := prefix + "_" + envName(fieldType)

		// Types with their own text form (Duration) are leaves even when they are structs
		if field.CanAddr() && field.Addr().Type().Implements(textUnmarshalerType) {
			if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
				u := field.Addr().Interface().(encoding.TextUnmarshaler)
				if err := u.UnmarshalText([]byte(envValue)); err != nil {
					return fmt.Errorf("failed to set field %s from env %s: %w", fieldType.Name, envKey, err)
				}
			}
			continue
		}

		// Handle nested structs
		if field.Kind() == reflect.Struct {
			if err := applyEnvToStruct(envKey, field); err != nil {
				return err
			}
			continue
		}

		// Handle pointers to structs
		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := applyEnvToStruct(envKey, field.Elem()); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue // No override for this field
		}

		if err := setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from env %s: %w", fieldType.Name, envKey, err)
		}
	}

	return nil
}

// setFieldFromEnv sets a struct field value from environment variable string
func setFieldFromEnv(field reflect.Value, envValue string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intVal, err := strconv.ParseInt(envValue, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", envValue)
		}
		field.SetInt(intVal)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintVal, err := strconv.ParseUint(envValue, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value: %s", envValue)
		}
		field.SetUint(uintVal)
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(envValue, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid float value: %s", envValue)
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(envValue)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", envValue)
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		// For slices, split by comma
		parts := strings.Split(envValue, ",")
		sliceType := field.Type().Elem()
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, part := range parts {
			elem := reflect.New(sliceType).Elem()
			if err := setFieldFromEnv(elem, strings.TrimSpace(part)); err != nil {
				return err
			}
			slice.Index(i).Set(elem)
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate validates configuration using registered validators
func Validate(config interface{}, validators ...Validator) error {
	for _, validator := range validators {
		if err := validator.Validate(config); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}
	return nil
}
