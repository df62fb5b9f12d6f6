package descriptor

import (
	"sort"
	"strings"
)

// Summary provides a high-level overview of a descriptor set
type Summary struct {
	TotalApps         int          `json:"total_apps"`
	TotalInstances    int          `json:"total_instances"`
	AutoRestartApps   int          `json:"autorestart_apps"`
	WatchedApps       int          `json:"watched_apps"`
	MemoryLimitedApps int          `json:"memory_limited_apps"`
	Apps              []AppSummary `json:"apps"`
}

// AppSummary provides a summary of one descriptor
type AppSummary struct {
	Name             string   `json:"name"`
	CommandLine      string   `json:"command_line"`
	WorkingDirectory string   `json:"cwd,omitempty"`
	ExecMode         string   `json:"exec_mode"`
	Instances        int      `json:"instances"`
	AutoRestart      bool     `json:"autorestart"`
	Watch            bool     `json:"watch"`
	MaxMemoryRestart string   `json:"max_memory_restart,omitempty"`
	EnvKeys          []string `json:"env_keys,omitempty"`
}

// Summarize returns a summary useful for operators and debugging.
// Environment values are left out; only the keys are listed.
func Summarize(descriptors []Descriptor) Summary {
	summary := Summary{
		Apps: make([]AppSummary, 0, len(descriptors)),
	}

	for _, d := range descriptors {
		app := AppSummary{
			Name:             d.Name,
			CommandLine:      strings.TrimSpace(d.Command + " " + strings.Join(d.Args, " ")),
			WorkingDirectory: d.WorkingDirectory,
			ExecMode:         string(d.ExecMode),
			Instances:        d.Instances,
			AutoRestart:      d.AutoRestartEnabled(),
			Watch:            d.Watch,
			MaxMemoryRestart: d.MemoryLimit().Human(),
		}
		for key := range d.Env {
			app.EnvKeys = append(app.EnvKeys, key)
		}
		sort.Strings(app.EnvKeys)

		summary.TotalInstances += d.Instances
		if app.AutoRestart {
			summary.AutoRestartApps++
		}
		if d.Watch {
			summary.WatchedApps++
		}
		if d.MemoryLimit() > 0 {
			summary.MemoryLimitedApps++
		}

		summary.Apps = append(summary.Apps, app)
	}

	summary.TotalApps = len(summary.Apps)

	return summary
}
