package descriptor

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const restartKey = "restart"

var (
	descriptorKeys = documentKeys(reflect.TypeOf(Descriptor{}))
	restartKeys    = documentKeys(reflect.TypeOf(RestartOptions{}))
)

// documentKeys maps document keys to field types. The yaml tags are used;
// json and toml tags carry the same names.
func documentKeys(t reflect.Type) map[string]reflect.Type {
	keys := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		keys[name] = field.Type
	}
	return keys
}

// fieldLocation is the app entry and key a decode failure came from
type fieldLocation struct {
	Index int
	Field string
}

// locateField decodes a rejected document again, one app key at a time,
// and reports the first key whose value does not decode. Unknown keys
// count as failures in strict mode. Documents whose structure is broken
// above the app level are not located.
func locateField(data []byte, format Format, strict bool) (fieldLocation, bool) {
	switch format {
	case FormatYAML, "":
		var raw struct {
			Apps []map[string]yaml.Node `yaml:"apps"`
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fieldLocation{}, false
		}
		return locateInApps(raw.Apps, strict, func(node yaml.Node, target interface{}) error {
			return node.Decode(target)
		})

	case FormatJSON:
		var raw struct {
			Apps []map[string]json.RawMessage `json:"apps"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fieldLocation{}, false
		}
		return locateInApps(raw.Apps, strict, func(value json.RawMessage, target interface{}) error {
			return json.Unmarshal(value, target)
		})

	case FormatTOML:
		var raw struct {
			Apps []map[string]toml.Primitive `toml:"apps"`
		}
		metadata, err := toml.Decode(string(data), &raw)
		if err != nil {
			return fieldLocation{}, false
		}
		return locateInApps(raw.Apps, strict, func(value toml.Primitive, target interface{}) error {
			return metadata.PrimitiveDecode(value, target)
		})

	default:
		return fieldLocation{}, false
	}
}

func locateInApps[V any](apps []map[string]V, strict bool, decodeValue func(V, interface{}) error) (fieldLocation, bool) {
	for i, app := range apps {
		if field, ok := firstBadKey(app, descriptorKeys, strict, decodeValue); ok {
			return fieldLocation{Index: i, Field: field}, true
		}
	}
	return fieldLocation{}, false
}

func firstBadKey[V any](values map[string]V, keys map[string]reflect.Type, strict bool, decodeValue func(V, interface{}) error) (string, bool) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fieldType, known := keys[name]
		if !known {
			if strict {
				return name, true
			}
			continue
		}

		if name == restartKey {
			var nested map[string]V
			if err := decodeValue(values[name], &nested); err != nil {
				return name, true
			}
			if field, ok := firstBadKey(nested, restartKeys, strict, decodeValue); ok {
				return restartKey + "." + field, true
			}
			continue
		}

		if err := decodeValue(values[name], reflect.New(fieldType).Interface()); err != nil {
			return name, true
		}
	}

	return "", false
}
