package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies the syntax of a descriptor document
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// Formats lists every supported document format
var Formats = []Format{FormatYAML, FormatJSON, FormatTOML}

// ParseFormat maps a format name ("yml" is accepted) to a Format
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported document format: %q", name)
	}
}

// FormatFromPath infers the document format from a file extension
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer document format of %s: no file extension", path)
	}
	return ParseFormat(ext)
}

func decodeDocument(data []byte, format Format, strict bool, doc *Document) error {
	switch format {
	case FormatYAML, "":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(strict)
		if err := decoder.Decode(doc); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		var extra yaml.Node
		if err := decoder.Decode(&extra); err != io.EOF {
			if err != nil {
				return err
			}
			return fmt.Errorf("line %d: a descriptor document holds a single YAML document", extra.Line)
		}
		return nil

	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		if strict {
			decoder.DisallowUnknownFields()
		}
		if err := decoder.Decode(doc); err != nil {
			return err
		}
		if _, err := decoder.Token(); err != io.EOF {
			return fmt.Errorf("unexpected data after JSON document at offset %d", decoder.InputOffset())
		}
		return nil

	case FormatTOML:
		metadata, err := toml.Decode(string(data), doc)
		if err != nil {
			return err
		}
		if strict {
			if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, 0, len(undecoded))
				for _, key := range undecoded {
					keys = append(keys, key.String())
				}
				sort.Strings(keys)
				return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported document format: %q", format)
	}
}

func encodeDocument(doc Document, format Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatYAML, "":
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc); err != nil {
			return nil, err
		}
		if err := encoder.Close(); err != nil {
			return nil, err
		}

	case FormatJSON:
		encoder := json.NewEncoder(&buf)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(doc); err != nil {
			return nil, err
		}

	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported document format: %q", format)
	}

	return buf.Bytes(), nil
}
