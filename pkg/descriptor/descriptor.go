package descriptor

import (
	"sort"
)

// Descriptor describes how a supervisor launches and supervises one process
type Descriptor struct {
	Name             string            `yaml:"name" json:"name" toml:"name"`
	Command          string            `yaml:"command" json:"command" toml:"command"`
	Args             Args              `yaml:"args,omitempty" json:"args,omitempty" toml:"args,omitempty"`
	WorkingDirectory string            `yaml:"cwd,omitempty" json:"cwd,omitempty" toml:"cwd,omitempty"`
	Env              map[string]string `yaml:"env,omitempty" json:"env,omitempty" toml:"env,omitempty"`
	Watch            bool              `yaml:"watch" json:"watch" toml:"watch"`
	Instances        int               `yaml:"instances" json:"instances" toml:"instances"`
	ExecMode         ExecMode          `yaml:"exec_mode" json:"exec_mode" toml:"exec_mode"`
	AutoRestart      *bool             `yaml:"autorestart,omitempty" json:"autorestart,omitempty" toml:"autorestart"`                                // Pointer to distinguish unset from false
	MaxMemoryRestart *ByteSize         `yaml:"max_memory_restart,omitempty" json:"max_memory_restart,omitempty" toml:"max_memory_restart,omitempty"` // Nil when unset; zero is rejected
	Restart          *RestartOptions   `yaml:"restart,omitempty" json:"restart,omitempty" toml:"restart,omitempty"`
}

// ExecMode selects how the supervisor runs the instances of a descriptor
type ExecMode string

const (
	ExecModeFork    ExecMode = "fork"    // Each instance is an independent child process
	ExecModeCluster ExecMode = "cluster" // Instances share listening sockets through the supervisor
)

// RestartOptions tunes the supervisor's restart behavior
type RestartOptions struct {
	MaxRestarts  int      `yaml:"max_restarts,omitempty" json:"max_restarts,omitempty" toml:"max_restarts,omitzero"`
	MinUptime    Duration `yaml:"min_uptime,omitempty" json:"min_uptime,omitempty" toml:"min_uptime,omitzero"`       // Runs shorter than this count as crashes
	RestartDelay Duration `yaml:"restart_delay,omitempty" json:"restart_delay,omitempty" toml:"restart_delay,omitzero"` // Pause before each restart
	KillTimeout  Duration `yaml:"kill_timeout,omitempty" json:"kill_timeout,omitempty" toml:"kill_timeout,omitzero"`    // Grace period before SIGKILL
}

// Document is the on-disk layout: one top-level "apps" collection
type Document struct {
	Apps []Descriptor `yaml:"apps" json:"apps" toml:"apps"`
}

const (
	DefaultInstances = 1
	DefaultExecMode  = ExecModeFork
)

// AutoRestartEnabled reports the effective autorestart setting.
func (d Descriptor) AutoRestartEnabled() bool {
	return d.AutoRestart == nil || *d.AutoRestart
}

// MemoryLimit returns the memory ceiling, or 0 when none is set.
func (d Descriptor) MemoryLimit() ByteSize {
	if d.MaxMemoryRestart == nil {
		return 0
	}
	return *d.MaxMemoryRestart
}

// Environ returns the environment as sorted KEY=value pairs, values verbatim.
func (d Descriptor) Environ() []string {
	if len(d.Env) == 0 {
		return nil
	}
	env := make([]string, 0, len(d.Env))
	for key, value := range d.Env {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)
	return env
}

// ApplyDefaults fills unset fields the way the loader does. Importers that
// build descriptors from other formats call it before Validate.
func ApplyDefaults(descriptors []Descriptor) {
	setDescriptorDefaults(descriptors)
}

func setDescriptorDefaults(descriptors []Descriptor) {
	for i := range descriptors {
		d := &descriptors[i]

		if d.Instances == 0 {
			d.Instances = DefaultInstances
		}
		if d.ExecMode == "" {
			d.ExecMode = DefaultExecMode
		}
		if d.AutoRestart == nil {
			autoRestart := true
			d.AutoRestart = &autoRestart
		}
		if len(d.Args) == 0 {
			d.Args = nil
		}
		if len(d.Env) == 0 {
			d.Env = nil
		}
		if d.Restart != nil && *d.Restart == (RestartOptions{}) {
			d.Restart = nil
		}
	}
}
