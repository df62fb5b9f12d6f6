package descriptor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize is a memory amount in bytes. A leading minus sign is accepted so
// that validation, not parsing, reports negative values.
//
// Text forms: a bare integer is bytes; a single-letter suffix (K, M, G, T)
// is a binary multiple, so "500M" is 500 MiB; explicit units such as "500MB"
// or "1.5GiB" follow their usual SI or IEC meaning.
type ByteSize int64

var binaryUnits = []struct {
	suffix string
	size   int64
}{
	{"T", humanize.TiByte},
	{"G", humanize.GiByte},
	{"M", humanize.MiByte},
	{"K", humanize.KiByte},
}

// ParseByteSize parses the text form of a byte size.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ByteSize(n), nil
	}

	if rest, ok := strings.CutPrefix(s, "-"); ok {
		if strings.HasPrefix(rest, "-") || strings.HasPrefix(rest, "+") {
			return 0, fmt.Errorf("invalid byte size %q", s)
		}
		n, err := ParseByteSize(rest)
		if err != nil {
			return 0, err
		}
		return -n, nil
	}

	text := s
	if i := strings.LastIndexFunc(s, isNumberRune); i >= 0 {
		unit := strings.TrimSpace(s[i+1:])
		if len(unit) == 1 && strings.ContainsAny(unit, "kKmMgGtT") {
			text = s[:i+1] + strings.ToUpper(unit) + "iB"
		}
	}

	n, err := humanize.ParseBytes(text)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("byte size out of range: %s", s)
	}
	return ByteSize(n), nil
}

func isNumberRune(r rune) bool {
	return (r >= '0' && r <= '9') || r == '.'
}

// String returns the shortest exact text form ("500M", "1536K", "1000").
func (b ByteSize) String() string {
	if b < 0 && b != math.MinInt64 {
		return "-" + (-b).String()
	}
	if b == 0 {
		return "0"
	}
	for _, unit := range binaryUnits {
		if int64(b)%unit.size == 0 {
			return strconv.FormatInt(int64(b)/unit.size, 10) + unit.suffix
		}
	}
	return strconv.FormatInt(int64(b), 10)
}

// Human returns a rounded, human-readable form such as "500 MiB".
func (b ByteSize) Human() string {
	if b <= 0 {
		return ""
	}
	return humanize.IBytes(uint64(b))
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: byte size must be a scalar", value.Line)
	}
	parsed, err := ParseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = parsed
	return nil
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		var number json.Number
		if err := json.Unmarshal(data, &number); err != nil {
			return fmt.Errorf("byte size must be a string or integer: %s", string(data))
		}
		text = number.String()
	}
	return b.UnmarshalText([]byte(text))
}

// UnmarshalTOML accepts TOML strings and integers.
func (b *ByteSize) UnmarshalTOML(value interface{}) error {
	switch v := value.(type) {
	case string:
		return b.UnmarshalText([]byte(v))
	case int64:
		return b.UnmarshalText([]byte(strconv.FormatInt(v, 10)))
	default:
		return fmt.Errorf("byte size must be a string or integer, got %T", value)
	}
}
