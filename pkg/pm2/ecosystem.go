// Package pm2 imports and exports pm2 ecosystem documents.
package pm2

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-descriptor/pkg/descriptor"
)

// numCPU is replaced in tests
var numCPU = runtime.NumCPU

// Ecosystem is the data form of a pm2 ecosystem file
type Ecosystem struct {
	Apps []App `json:"apps" yaml:"apps"`
}

// App is one pm2 application entry. Keys pm2 knows but descriptors do not
// carry (log paths, merge_logs, cron_restart...) are ignored.
type App struct {
	Name             string               `json:"name" yaml:"name"`
	Script           string               `json:"script" yaml:"script"`
	Interpreter      string               `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
	InterpreterArgs  descriptor.Args      `json:"interpreter_args,omitempty" yaml:"interpreter_args,omitempty"`
	Args             descriptor.Args      `json:"args,omitempty" yaml:"args,omitempty"`
	Cwd              string               `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Env              Env                  `json:"env,omitempty" yaml:"env,omitempty"`
	Watch            Watch                `json:"watch" yaml:"watch"`
	Instances        *Instances           `json:"instances,omitempty" yaml:"instances,omitempty"`
	ExecMode         string               `json:"exec_mode,omitempty" yaml:"exec_mode,omitempty"`
	AutoRestart      *bool                `json:"autorestart,omitempty" yaml:"autorestart,omitempty"`
	MaxMemoryRestart *descriptor.ByteSize `json:"max_memory_restart,omitempty" yaml:"max_memory_restart,omitempty"`
	MaxRestarts      int                  `json:"max_restarts,omitempty" yaml:"max_restarts,omitempty"`
	MinUptime        Millis               `json:"min_uptime,omitempty" yaml:"min_uptime,omitempty"`
	RestartDelay     Millis               `json:"restart_delay,omitempty" yaml:"restart_delay,omitempty"`
	KillTimeout      Millis               `json:"kill_timeout,omitempty" yaml:"kill_timeout,omitempty"`

	// Environments holds the env_<name> overlays, keyed by <name>
	Environments map[string]Env `json:"-" yaml:"-"`
}

const envOverlayPrefix = "env_"

func (a *App) UnmarshalJSON(data []byte) error {
	type plain App
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		name, ok := strings.CutPrefix(key, envOverlayPrefix)
		if !ok || name == "" {
			continue
		}
		var env Env
		if err := json.Unmarshal(value, &env); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if p.Environments == nil {
			p.Environments = make(map[string]Env)
		}
		p.Environments[name] = env
	}

	*a = App(p)
	return nil
}

func (a *App) UnmarshalYAML(value *yaml.Node) error {
	type plain App
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}

	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			name, ok := strings.CutPrefix(value.Content[i].Value, envOverlayPrefix)
			if !ok || name == "" {
				continue
			}
			var env Env
			if err := value.Content[i+1].Decode(&env); err != nil {
				return fmt.Errorf("%s: %w", value.Content[i].Value, err)
			}
			if p.Environments == nil {
				p.Environments = make(map[string]Env)
			}
			p.Environments[name] = env
		}
	}

	*a = App(p)
	return nil
}

// Env is a pm2 environment block. pm2 accepts numbers and booleans as
// values; they are kept as their literal text.
type Env map[string]string

func (e *Env) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()

	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	env := make(Env, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			env[key] = v
		case json.Number:
			env[key] = v.String()
		case bool:
			env[key] = strconv.FormatBool(v)
		case nil:
			env[key] = ""
		default:
			return fmt.Errorf("env %s: value must be a scalar, got %T", key, value)
		}
	}
	*e = env
	return nil
}

func (e *Env) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: env must be a mapping", value.Line)
	}
	env := make(Env, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: env %s: value must be a scalar", val.Line, key.Value)
		}
		if val.Tag == "!!null" {
			env[key.Value] = ""
			continue
		}
		env[key.Value] = val.Value
	}
	*e = env
	return nil
}

// Watch is pm2's watch setting: a boolean, or a list of paths which
// enables watching. The paths themselves are not carried over.
type Watch bool

func (w *Watch) UnmarshalJSON(data []byte) error {
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err == nil {
		*w = Watch(enabled)
		return nil
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return fmt.Errorf("watch must be a boolean or a list of paths")
	}
	*w = len(paths) > 0
	return nil
}

func (w *Watch) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var enabled bool
		if err := value.Decode(&enabled); err != nil {
			return fmt.Errorf("line %d: watch must be a boolean or a list of paths", value.Line)
		}
		*w = Watch(enabled)
		return nil
	case yaml.SequenceNode:
		*w = len(value.Content) > 0
		return nil
	default:
		return fmt.Errorf("line %d: watch must be a boolean or a list of paths", value.Line)
	}
}

// Instances is pm2's instance count. "max" and 0 mean one per CPU; a
// negative n means all CPUs but n.
type Instances int

// InstancesMax is the numeric form of "max"
const InstancesMax Instances = 0

// ParseInstances parses the text form of an instance count.
func ParseInstances(s string) (Instances, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "max") {
		return InstancesMax, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("instances must be a number or \"max\": %q", s)
	}
	return Instances(n), nil
}

// Count resolves the instance count against the CPUs of this host.
func (i Instances) Count() int {
	if i > 0 {
		return int(i)
	}
	count := numCPU() + int(i)
	if count < 1 {
		return 1
	}
	return count
}

func (i *Instances) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*i = Instances(n)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("instances must be a number or \"max\": %s", string(data))
	}
	parsed, err := ParseInstances(text)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

func (i *Instances) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: instances must be a scalar", value.Line)
	}
	parsed, err := ParseInstances(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*i = parsed
	return nil
}

// Millis is a pm2 duration. It reads integer milliseconds or duration
// strings and always writes integer milliseconds.
type Millis descriptor.Duration

func (m Millis) Duration() time.Duration {
	return time.Duration(m)
}

func (m Millis) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(m).Milliseconds())
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	var d descriptor.Duration
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = Millis(d)
	return nil
}

func (m *Millis) UnmarshalYAML(value *yaml.Node) error {
	var d descriptor.Duration
	if err := value.Decode(&d); err != nil {
		return err
	}
	*m = Millis(d)
	return nil
}
