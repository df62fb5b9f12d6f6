package descriptor

import (
	"encoding/json"
	"fmt"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

// Args is the ordered argument list passed to the command. Documents may
// give it as a list or as one string, which is split with shell quoting
// rules (no variable or backtick expansion).
type Args []string

// ParseArgs splits a command line into arguments.
func ParseArgs(line string) (Args, error) {
	parser := shellwords.NewParser()
	words, err := parser.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("invalid argument string %q: %w", line, err)
	}
	// The parser stops at unquoted shell operators instead of failing.
	if parser.Position >= 0 {
		return nil, fmt.Errorf("invalid argument string %q: shell operators are not supported", line)
	}
	if len(words) == 0 {
		return nil, nil
	}
	return Args(words), nil
}

func (a *Args) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseArgs(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*a = parsed
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*a = normalizeArgs(list)
		return nil
	default:
		return fmt.Errorf("line %d: args must be a string or a list of strings", value.Line)
	}
}

func (a *Args) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var line string
	if err := json.Unmarshal(data, &line); err == nil {
		parsed, err := ParseArgs(line)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("args must be a string or a list of strings")
	}
	*a = normalizeArgs(list)
	return nil
}

// UnmarshalTOML accepts a TOML string or array of strings.
func (a *Args) UnmarshalTOML(value interface{}) error {
	switch v := value.(type) {
	case string:
		parsed, err := ParseArgs(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []interface{}:
		list := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("args[%d] must be a string, got %T", i, item)
			}
			list = append(list, s)
		}
		*a = normalizeArgs(list)
		return nil
	default:
		return fmt.Errorf("args must be a string or an array of strings, got %T", value)
	}
}

func normalizeArgs(list []string) Args {
	if len(list) == 0 {
		return nil
	}
	return Args(list)
}
