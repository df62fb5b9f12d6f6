package pm2

import (
	"encoding/json"

	"github.com/core-tools/hsu-descriptor/pkg/descriptor"
	"github.com/core-tools/hsu-descriptor/pkg/errors"
	"github.com/core-tools/hsu-descriptor/pkg/logging"
)

// interpreterNone tells pm2 to execute the script directly
const interpreterNone = "none"

// Convert maps ecosystem apps to descriptors, applies descriptor defaults
// and validates the result with the descriptor rules.
func Convert(eco Ecosystem, options Options) ([]descriptor.Descriptor, error) {
	logger := logging.OrNop(options.Logger)

	descriptors := make([]descriptor.Descriptor, 0, len(eco.Apps))
	for _, app := range eco.Apps {
		descriptors = append(descriptors, convertApp(app, options.Environment, logger))
	}

	descriptor.ApplyDefaults(descriptors)

	if err := descriptor.Validate(descriptors); err != nil {
		return nil, err
	}

	return descriptors, nil
}

func convertApp(app App, environment string, logger logging.Logger) descriptor.Descriptor {
	d := descriptor.Descriptor{
		Name:             app.Name,
		Command:          app.Script,
		Args:             app.Args,
		WorkingDirectory: app.Cwd,
		Watch:            bool(app.Watch),
		ExecMode:         execMode(app.ExecMode),
		AutoRestart:      app.AutoRestart,
		MaxMemoryRestart: app.MaxMemoryRestart,
	}

	if app.Interpreter != "" && app.Interpreter != interpreterNone {
		args := make(descriptor.Args, 0, len(app.InterpreterArgs)+1+len(app.Args))
		args = append(args, app.InterpreterArgs...)
		args = append(args, app.Script)
		args = append(args, app.Args...)
		d.Command = app.Interpreter
		d.Args = args
	}

	if app.Instances != nil {
		d.Instances = app.Instances.Count()
	}

	d.Env = mergeEnv(app.Env, nil)
	if environment != "" {
		if overlay, ok := app.Environments[environment]; ok {
			d.Env = mergeEnv(app.Env, overlay)
		} else {
			logger.Debugf("App %s has no env_%s block, using env", app.Name, environment)
		}
	}

	restart := descriptor.RestartOptions{
		MaxRestarts:  app.MaxRestarts,
		MinUptime:    descriptor.Duration(app.MinUptime),
		RestartDelay: descriptor.Duration(app.RestartDelay),
		KillTimeout:  descriptor.Duration(app.KillTimeout),
	}
	if restart != (descriptor.RestartOptions{}) {
		d.Restart = &restart
	}

	return d
}

func execMode(mode string) descriptor.ExecMode {
	switch mode {
	case "fork_mode":
		return descriptor.ExecModeFork
	case "cluster_mode":
		return descriptor.ExecModeCluster
	default:
		return descriptor.ExecMode(mode)
	}
}

func mergeEnv(base, overlay Env) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	env := make(map[string]string, len(base)+len(overlay))
	for key, value := range base {
		env[key] = value
	}
	for key, value := range overlay {
		env[key] = value
	}
	return env
}

// Export encodes descriptors as a pm2 JSON ecosystem. Commands run with
// interpreter "none" so pm2 executes them as given; durations are written
// in milliseconds.
func Export(descriptors []descriptor.Descriptor) ([]byte, error) {
	eco := Ecosystem{Apps: make([]App, 0, len(descriptors))}

	for _, d := range descriptors {
		instances := Instances(d.Instances)
		app := App{
			Name:             d.Name,
			Script:           d.Command,
			Interpreter:      interpreterNone,
			Args:             d.Args,
			Cwd:              d.WorkingDirectory,
			Env:              Env(d.Env),
			Watch:            Watch(d.Watch),
			ExecMode:         string(d.ExecMode),
			AutoRestart:      d.AutoRestart,
			MaxMemoryRestart: d.MaxMemoryRestart,
		}
		if d.Instances > 0 {
			app.Instances = &instances
		}
		if d.Restart != nil {
			app.MaxRestarts = d.Restart.MaxRestarts
			app.MinUptime = Millis(d.Restart.MinUptime)
			app.RestartDelay = Millis(d.Restart.RestartDelay)
			app.KillTimeout = Millis(d.Restart.KillTimeout)
		}
		eco.Apps = append(eco.Apps, app)
	}

	data, err := json.MarshalIndent(eco, "", "  ")
	if err != nil {
		return nil, errors.NewInternalError("failed to encode pm2 ecosystem", err)
	}
	return append(data, '\n'), nil
}
