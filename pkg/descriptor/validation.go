package descriptor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-descriptor/pkg/errors"
)

const maxNameLength = 64

// ValidateName validates descriptor name format and constraints
func ValidateName(name string) error {
	if name == "" {
		return errors.NewValidationError("name is required", nil).WithField("name")
	}

	if len(name) > maxNameLength {
		return errors.NewValidationError(fmt.Sprintf("name cannot exceed %d characters", maxNameLength), nil).WithField("name")
	}

	for _, char := range name {
		if !isValidNameChar(char) {
			return errors.NewValidationError(
				"name contains invalid characters: only letters, numbers, dots, hyphens, and underscores are allowed",
				nil,
			).WithField("name")
		}
	}

	return nil
}

// ValidateDescriptor checks a single descriptor with defaults already applied
func ValidateDescriptor(d Descriptor) error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if strings.TrimSpace(d.Command) == "" {
		return errors.NewValidationError("command is required", nil).WithField("command")
	}

	if d.WorkingDirectory != "" && !filepath.IsAbs(d.WorkingDirectory) {
		return errors.NewValidationError("working directory must be an absolute path: "+d.WorkingDirectory, nil).WithField("cwd")
	}

	for key := range d.Env {
		if key == "" || strings.Contains(key, "=") {
			return errors.NewValidationError(fmt.Sprintf("invalid environment variable name: %q", key), nil).WithField("env")
		}
	}

	if d.Instances < 1 {
		return errors.NewValidationError(fmt.Sprintf("instances must be at least 1: %d", d.Instances), nil).WithField("instances")
	}

	if err := ValidateExecMode(d.ExecMode); err != nil {
		return err
	}

	if d.MaxMemoryRestart != nil && *d.MaxMemoryRestart <= 0 {
		return errors.NewValidationError(
			fmt.Sprintf("max memory restart must be a positive size: %d bytes", int64(*d.MaxMemoryRestart)),
			nil,
		).WithField("max_memory_restart")
	}

	if d.Restart != nil {
		if err := ValidateRestartOptions(*d.Restart); err != nil {
			return err
		}
	}

	return nil
}

// ValidateExecMode rejects modes a supervisor would not recognize
func ValidateExecMode(mode ExecMode) error {
	switch mode {
	case ExecModeFork, ExecModeCluster:
		return nil
	default:
		return errors.NewValidationError(
			fmt.Sprintf("unsupported exec mode: %s", mode),
			nil,
		).WithField("exec_mode").WithContext("supported_modes", "fork, cluster")
	}
}

// ValidateRestartOptions validates restart tuning values
func ValidateRestartOptions(options RestartOptions) error {
	if options.MaxRestarts < 0 {
		return errors.NewValidationError(fmt.Sprintf("max_restarts cannot be negative: %d", options.MaxRestarts), nil).WithField("restart.max_restarts")
	}
	if options.MinUptime < 0 {
		return errors.NewValidationError(fmt.Sprintf("min_uptime cannot be negative: %v", options.MinUptime), nil).WithField("restart.min_uptime")
	}
	if options.RestartDelay < 0 {
		return errors.NewValidationError(fmt.Sprintf("restart_delay cannot be negative: %v", options.RestartDelay), nil).WithField("restart.restart_delay")
	}
	if options.KillTimeout < 0 {
		return errors.NewValidationError(fmt.Sprintf("kill_timeout cannot be negative: %v", options.KillTimeout), nil).WithField("restart.kill_timeout")
	}
	return nil
}

// Validate checks every descriptor and name uniqueness across the list
func Validate(descriptors []Descriptor) error {
	return ValidateSources([]Source{{Apps: descriptors}})
}

// Source is the set of descriptors loaded from one document
type Source struct {
	Path string
	Apps []Descriptor
}

// ValidateSources validates descriptors loaded from several documents.
// Names must be unique across all of them.
func ValidateSources(sources []Source) error {
	type seenAt struct {
		source string
		index  int
	}
	seen := make(map[string]seenAt)

	for _, source := range sources {
		for i, d := range source.Apps {
			if err := ValidateDescriptor(d); err != nil {
				verr := errors.NewValidationError(
					fmt.Sprintf("invalid app at index %d", i),
					err,
				).WithContext(errors.ContextIndex, i).WithContext(errors.ContextName, d.Name)
				if source.Path != "" {
					verr.WithContext(errors.ContextSource, source.Path)
				}
				return verr
			}

			if prev, exists := seen[d.Name]; exists {
				return errors.NewValidationError(
					fmt.Sprintf("duplicate app name '%s' found at %s and %s",
						d.Name, location(prev.source, prev.index), location(source.Path, i)),
					nil,
				).WithField("name").WithContext(errors.ContextName, d.Name).WithContext(errors.ContextIndex, i)
			}
			seen[d.Name] = seenAt{source: source.Path, index: i}
		}
	}

	return nil
}

func location(source string, index int) string {
	if source == "" {
		return fmt.Sprintf("index %d", index)
	}
	return fmt.Sprintf("%s index %d", source, index)
}

func isValidNameChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '_' || char == '.'
}
