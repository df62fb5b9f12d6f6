package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/core-tools/hsu-descriptor/pkg/descriptor"
	"github.com/core-tools/hsu-descriptor/pkg/errors"
	"github.com/core-tools/hsu-descriptor/pkg/location"
	"github.com/core-tools/hsu-descriptor/pkg/logging"
	"github.com/core-tools/hsu-descriptor/pkg/pm2"

	flags "github.com/jessevdk/go-flags"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const (
	inputNative = "native"
	inputPM2    = "pm2"
)

type InputOptions struct {
	From        string `long:"from" choice:"native" choice:"pm2" default:"native" description:"input document kind"`
	Strict      bool   `long:"strict" description:"reject keys that do not map to a descriptor field"`
	Environment string `long:"env" description:"pm2 env_<name> block to apply"`
	ConfigDir   string `long:"config-dir" description:"directory searched when no FILE is given"`
	System      bool   `long:"system" description:"search the system configuration directory when no FILE is given"`
}

type fileArgs struct {
	Files []string `positional-arg-name:"FILE"`
}

type validateCommand struct {
	InputOptions
	Args fileArgs `positional-args:"yes"`
}

type showCommand struct {
	InputOptions
	JSON bool     `long:"json" description:"print the summary as JSON"`
	Args fileArgs `positional-args:"yes"`
}

type convertCommand struct {
	InputOptions
	To     string   `long:"to" choice:"yaml" choice:"json" choice:"toml" choice:"pm2" description:"output format, inferred from --output when omitted"`
	Output string   `short:"o" long:"output" description:"write to this file instead of stdout"`
	Args   fileArgs `positional-args:"yes"`
}

type flagOptions struct {
	LogLevel  string `long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"warn" description:"log level"`
	LogFormat string `long:"log-format" choice:"console" choice:"json" default:"console" description:"log format"`

	Validate validateCommand `command:"validate" description:"validate descriptor documents"`
	Show     showCommand     `command:"show" description:"summarize descriptor documents"`
	Convert  convertCommand  `command:"convert" description:"re-encode descriptor documents"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-cli , ", module)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	var opts flagOptions
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, flagsErr.Message)
			return exitOK
		}
		fmt.Fprintf(stderr, "Command line flags parsing failed: %v\n", err)
		return exitUsage
	}

	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = opts.LogLevel
	zapConfig.Format = opts.LogFormat
	zapLogger, err := logging.NewZapLogger(zapConfig)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return exitUsage
	}
	defer zapLogger.Close()

	logger := logging.NewLogger(
		logPrefix("hsu-descriptor"), logging.LogFuncs{
			Debugf: zapLogger.Debugf,
			Infof:  zapLogger.Infof,
			Warnf:  zapLogger.Warnf,
			Errorf: zapLogger.Errorf,
		})

	ctx := context.Background()

	switch parser.Active.Name {
	case "validate":
		err = runValidate(ctx, opts.Validate, stdout, logger)
	case "show":
		err = runShow(ctx, opts.Show, stdout, logger)
	case "convert":
		err = runConvert(ctx, opts.Convert, stdout, logger)
	default:
		err = fmt.Errorf("unknown command: %s", parser.Active.Name)
	}
	if err != nil {
		logger.Errorf("%s failed: %v", parser.Active.Name, err)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	return exitOK
}

// resolveFiles returns files, or the documents found in the standard
// configuration directory when none were given.
func resolveFiles(files []string, input InputOptions, logger logging.Logger) ([]string, error) {
	if len(files) > 0 {
		return files, nil
	}

	config := location.GetRecommendedConfig("user", "")
	if input.System {
		config = location.GetRecommendedConfig("system", "")
	}
	if input.ConfigDir != "" {
		config.BaseDirectory = input.ConfigDir
		config.UseSubdirectory = false
	}

	return location.NewLocator(config, logger).Discover()
}

func loadFile(path string, input InputOptions, logger logging.Logger) ([]descriptor.Descriptor, error) {
	if input.From == inputPM2 {
		return pm2.LoadFile(path, pm2.Options{Environment: input.Environment, Logger: logger})
	}
	return descriptor.LoadFile(path, descriptor.LoadOptions{Strict: input.Strict, Logger: logger})
}

func loadFiles(ctx context.Context, paths []string, input InputOptions, logger logging.Logger) ([]descriptor.Descriptor, error) {
	if input.From != inputPM2 {
		return descriptor.LoadFiles(ctx, paths, descriptor.LoadOptions{Strict: input.Strict, Logger: logger})
	}

	sources := make([]descriptor.Source, 0, len(paths))
	for _, path := range paths {
		apps, err := loadFile(path, input, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, descriptor.Source{Path: path, Apps: apps})
	}
	if err := descriptor.ValidateSources(sources); err != nil {
		return nil, err
	}

	var all []descriptor.Descriptor
	for _, source := range sources {
		all = append(all, source.Apps...)
	}
	return all, nil
}

// runValidate checks every file on its own, reports each failure, then
// checks names across the files that loaded.
func runValidate(ctx context.Context, cmd validateCommand, stdout io.Writer, logger logging.Logger) error {
	files, err := resolveFiles(cmd.Args.Files, cmd.InputOptions, logger)
	if err != nil {
		return err
	}

	failures := errors.NewErrorCollection()
	var sources []descriptor.Source

	for _, path := range files {
		if ctx.Err() != nil {
			return errors.NewCancelledError("validation interrupted", ctx.Err())
		}

		apps, err := loadFile(path, cmd.InputOptions, logger)
		if err != nil {
			fmt.Fprintf(stdout, "FAIL %s: %v\n", path, err)
			failures.Add(err)
			continue
		}
		fmt.Fprintf(stdout, "OK   %s (%d apps)\n", path, len(apps))
		sources = append(sources, descriptor.Source{Path: path, Apps: apps})
	}

	if len(sources) > 1 {
		if err := descriptor.ValidateSources(sources); err != nil {
			fmt.Fprintf(stdout, "FAIL %v\n", err)
			failures.Add(err)
		}
	}

	return failures.ToError()
}

func runShow(ctx context.Context, cmd showCommand, stdout io.Writer, logger logging.Logger) error {
	files, err := resolveFiles(cmd.Args.Files, cmd.InputOptions, logger)
	if err != nil {
		return err
	}

	descriptors, err := loadFiles(ctx, files, cmd.InputOptions, logger)
	if err != nil {
		return err
	}

	summary := descriptor.Summarize(descriptors)

	if cmd.JSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return errors.NewInternalError("failed to encode summary", err)
		}
		fmt.Fprintln(stdout, string(data))
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tINSTANCES\tAUTORESTART\tWATCH\tMEMORY\tCOMMAND")
	for _, app := range summary.Apps {
		memory := app.MaxMemoryRestart
		if memory == "" {
			memory = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%t\t%s\t%s\n",
			app.Name, app.ExecMode, app.Instances, app.AutoRestart, app.Watch, memory, app.CommandLine)
	}
	if err := w.Flush(); err != nil {
		return errors.NewIOError("failed to write summary", err)
	}

	fmt.Fprintf(stdout, "\n%d apps, %d instances, %d autorestart, %d watched, %d memory limited\n",
		summary.TotalApps, summary.TotalInstances, summary.AutoRestartApps, summary.WatchedApps, summary.MemoryLimitedApps)
	return nil
}

func runConvert(ctx context.Context, cmd convertCommand, stdout io.Writer, logger logging.Logger) error {
	target := cmd.To
	if target == "" {
		if cmd.Output == "" {
			return errors.NewValidationError("--to is required when writing to stdout", nil).WithField("to")
		}
		format, err := descriptor.FormatFromPath(cmd.Output)
		if err != nil {
			return errors.NewValidationError("cannot infer output format, use --to", err).WithField("to")
		}
		target = string(format)
	}

	files, err := resolveFiles(cmd.Args.Files, cmd.InputOptions, logger)
	if err != nil {
		return err
	}

	descriptors, err := loadFiles(ctx, files, cmd.InputOptions, logger)
	if err != nil {
		return err
	}

	var data []byte
	if target == inputPM2 {
		data, err = pm2.Export(descriptors)
	} else {
		format, perr := descriptor.ParseFormat(target)
		if perr != nil {
			return errors.NewValidationError("unsupported output format", perr).WithField("to")
		}
		data, err = descriptor.Marshal(descriptors, format)
	}
	if err != nil {
		return err
	}

	if cmd.Output == "" {
		if _, err := stdout.Write(data); err != nil {
			return errors.NewIOError("failed to write output", err)
		}
		return nil
	}

	if err := descriptor.WriteFile(ctx, cmd.Output, data); err != nil {
		return err
	}
	logger.Infof("Wrote %d descriptors to %s (%s)", len(descriptors), cmd.Output, strings.ToUpper(target))
	return nil
}
