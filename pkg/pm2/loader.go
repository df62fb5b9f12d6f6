package pm2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-descriptor/pkg/descriptor"
	"github.com/core-tools/hsu-descriptor/pkg/errors"
	"github.com/core-tools/hsu-descriptor/pkg/logging"
)

// Options controls ecosystem import
type Options struct {
	// Format of in-memory input. LoadFile infers it from the extension.
	Format descriptor.Format

	// Environment selects an env_<name> overlay, like pm2's --env flag
	Environment string

	Logger logging.Logger
}

// Parse decodes an ecosystem document. The document is either an object
// with an "apps" list, a bare list of apps, or a single app object.
func Parse(data []byte, format descriptor.Format) (Ecosystem, error) {
	var eco Ecosystem
	var err error

	switch format {
	case descriptor.FormatJSON, "":
		format = descriptor.FormatJSON
		eco, err = parseJSON(data)
	case descriptor.FormatYAML:
		eco, err = parseYAML(data)
	default:
		err = fmt.Errorf("pm2 ecosystems are JSON or YAML, not %s", format)
	}
	if err != nil {
		return Ecosystem{}, errors.NewParseError("failed to parse pm2 ecosystem", err).WithContext(errors.ContextFormat, string(format))
	}

	return eco, nil
}

func parseJSON(data []byte) (Ecosystem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Ecosystem{}, nil
	}

	if trimmed[0] == '[' {
		var apps []App
		if err := json.Unmarshal(trimmed, &apps); err != nil {
			return Ecosystem{}, err
		}
		return Ecosystem{Apps: apps}, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keys); err != nil {
		return Ecosystem{}, err
	}
	if _, ok := keys["apps"]; ok {
		var eco Ecosystem
		if err := json.Unmarshal(trimmed, &eco); err != nil {
			return Ecosystem{}, err
		}
		return eco, nil
	}

	var app App
	if err := json.Unmarshal(trimmed, &app); err != nil {
		return Ecosystem{}, err
	}
	return Ecosystem{Apps: []App{app}}, nil
}

func parseYAML(data []byte) (Ecosystem, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if err == io.EOF {
			return Ecosystem{}, nil
		}
		return Ecosystem{}, err
	}
	if len(root.Content) == 0 {
		return Ecosystem{}, nil
	}
	node := root.Content[0]

	switch node.Kind {
	case yaml.SequenceNode:
		var apps []App
		if err := node.Decode(&apps); err != nil {
			return Ecosystem{}, err
		}
		return Ecosystem{Apps: apps}, nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "apps" {
				var eco Ecosystem
				if err := node.Decode(&eco); err != nil {
					return Ecosystem{}, err
				}
				return eco, nil
			}
		}
		var app App
		if err := node.Decode(&app); err != nil {
			return Ecosystem{}, err
		}
		return Ecosystem{Apps: []App{app}}, nil
	default:
		return Ecosystem{}, fmt.Errorf("line %d: ecosystem must be a mapping or a list of apps", node.Line)
	}
}

// Load parses an in-memory ecosystem and converts it to validated descriptors
func Load(data []byte, options Options) ([]descriptor.Descriptor, error) {
	eco, err := Parse(data, options.Format)
	if err != nil {
		return nil, err
	}
	return Convert(eco, options)
}

// LoadFile reads an ecosystem file (.json, .yaml or .yml) and converts it.
// Relative cwd values are resolved against the file's directory, as pm2 does.
func LoadFile(path string, options Options) ([]descriptor.Descriptor, error) {
	logger := logging.OrNop(options.Logger)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".cjs", ".mjs":
		return nil, errors.NewParseError(
			"JavaScript ecosystem files are not supported, export the configuration as JSON",
			nil,
		).WithContext(errors.ContextSource, path)
	}

	if options.Format == "" {
		format, err := descriptor.FormatFromPath(path)
		if err != nil {
			return nil, errors.NewParseError("unknown ecosystem format", err).WithContext(errors.ContextSource, path)
		}
		options.Format = format
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read pm2 ecosystem", err).WithContext(errors.ContextSource, path)
	}

	eco, err := Parse(data, options.Format)
	if err != nil {
		return nil, withSource(err, path)
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.NewIOError("failed to resolve ecosystem directory", err).WithContext(errors.ContextSource, path)
	}
	for i := range eco.Apps {
		if cwd := eco.Apps[i].Cwd; cwd != "" && !filepath.IsAbs(cwd) {
			eco.Apps[i].Cwd = filepath.Join(baseDir, cwd)
		}
	}

	descriptors, err := Convert(eco, options)
	if err != nil {
		return nil, withSource(err, path)
	}

	logger.Infof("Imported %d pm2 apps from %s", len(descriptors), path)

	return descriptors, nil
}

func withSource(err error, path string) error {
	if domainErr, ok := err.(*errors.DomainError); ok {
		domainErr.WithContext(errors.ContextSource, path)
	}
	return err
}
