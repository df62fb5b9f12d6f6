package descriptor

import (
	"context"
	stderrors "errors"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/core-tools/hsu-descriptor/pkg/errors"
	"github.com/core-tools/hsu-descriptor/pkg/logging"
)

const defaultLoadConcurrency = 4

// LoadOptions controls how descriptor documents are read
type LoadOptions struct {
	// Format overrides detection from the file extension. Parse defaults to YAML.
	Format Format

	// Strict rejects keys that do not map to a descriptor field
	Strict bool

	// Concurrency bounds parallel reads in LoadFiles
	Concurrency int

	Logger logging.Logger
}

func (o LoadOptions) concurrency() int {
	if o.Concurrency <= 0 {
		return defaultLoadConcurrency
	}
	return o.Concurrency
}

// Parse decodes an in-memory document, applies defaults and validates it.
// Malformed input yields a parse error; well-formed input with bad or
// duplicate values yields a validation error naming the field.
func Parse(data []byte, options LoadOptions) ([]Descriptor, error) {
	descriptors, err := decode(data, options)
	if err != nil {
		return nil, err
	}

	if err := Validate(descriptors); err != nil {
		return nil, err
	}

	return descriptors, nil
}

func decode(data []byte, options LoadOptions) ([]Descriptor, error) {
	format := options.Format
	if format == "" {
		format = FormatYAML
	}

	var doc Document
	if err := decodeDocument(data, format, options.Strict, &doc); err != nil {
		perr := errors.NewParseError("failed to parse descriptor document", err).WithContext(errors.ContextFormat, string(format))
		if location, ok := locateField(data, format, options.Strict); ok {
			perr = perr.WithField(location.Field).WithContext(errors.ContextIndex, location.Index)
		}
		return nil, perr
	}

	setDescriptorDefaults(doc.Apps)

	logging.OrNop(options.Logger).Debugf("Decoded %d descriptors, format: %s", len(doc.Apps), format)

	return doc.Apps, nil
}

// LoadFile reads and parses a descriptor document from disk
func LoadFile(path string, options LoadOptions) ([]Descriptor, error) {
	logger := logging.OrNop(options.Logger)

	descriptors, err := loadFile(path, options)
	if err != nil {
		return nil, err
	}

	if err := ValidateSources([]Source{{Path: path, Apps: descriptors}}); err != nil {
		return nil, err
	}

	logger.Infof("Loaded %d descriptors from %s", len(descriptors), path)

	return descriptors, nil
}

func loadFile(path string, options LoadOptions) ([]Descriptor, error) {
	if options.Format == "" {
		format, err := FormatFromPath(path)
		if err != nil {
			return nil, errors.NewParseError("unknown document format", err).WithContext(errors.ContextSource, path)
		}
		options.Format = format
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read descriptor document", err).WithContext(errors.ContextSource, path)
	}

	descriptors, err := decode(data, options)
	if err != nil {
		var domainErr *errors.DomainError
		if stderrors.As(err, &domainErr) {
			domainErr.WithContext(errors.ContextSource, path)
		}
		return nil, err
	}

	return descriptors, nil
}

// LoadFiles reads several documents in parallel and returns their
// descriptors in argument order. Names must be unique across all files.
// When several documents fail, the error of the earliest path is returned.
func LoadFiles(ctx context.Context, paths []string, options LoadOptions) ([]Descriptor, error) {
	logger := logging.OrNop(options.Logger)

	sources := make([]Source, len(paths))
	failures := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(options.concurrency())

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failures[i] = errors.NewCancelledError("descriptor loading cancelled", err).WithContext(errors.ContextSource, path)
				return nil
			}
			descriptors, err := loadFile(path, options)
			if err != nil {
				failures[i] = err
				return nil
			}
			sources[i] = Source{Path: path, Apps: descriptors}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range failures {
		if err != nil {
			return nil, err
		}
	}

	if err := ValidateSources(sources); err != nil {
		return nil, err
	}

	var all []Descriptor
	for _, source := range sources {
		all = append(all, source.Apps...)
	}

	logger.Infof("Loaded %d descriptors from %d documents", len(all), len(paths))

	return all, nil
}
