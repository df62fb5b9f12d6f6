package descriptor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/core-tools/hsu-descriptor/pkg/errors"
)

const fileLockRetryInterval = 50 * time.Millisecond

// Marshal encodes descriptors as a document in the given format.
// Parsing the result yields the same descriptors.
func Marshal(descriptors []Descriptor, format Format) ([]byte, error) {
	data, err := encodeDocument(Document{Apps: descriptors}, format)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode descriptor document", err).WithContext(errors.ContextFormat, string(format))
	}
	return data, nil
}

// SaveFile validates descriptors and writes them to path. The format is
// inferred from the extension when empty.
func SaveFile(ctx context.Context, path string, descriptors []Descriptor, format Format) error {
	if format == "" {
		inferred, err := FormatFromPath(path)
		if err != nil {
			return errors.NewValidationError("unknown document format", err).WithContext(errors.ContextSource, path)
		}
		format = inferred
	}

	if err := Validate(descriptors); err != nil {
		return err
	}

	data, err := Marshal(descriptors, format)
	if err != nil {
		return err
	}

	return WriteFile(ctx, path, data)
}

// WriteFile replaces path with data atomically. Writers are serialized
// through an advisory lock on path + ".lock", so concurrent writers never
// interleave and readers never observe a partial document.
func WriteFile(ctx context.Context, path string, data []byte) error {
	lock := flock.New(path + ".lock")

	locked, err := lock.TryLockContext(ctx, fileLockRetryInterval)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewCancelledError("waiting for document lock", err).WithContext(errors.ContextSource, path)
		}
		return errors.NewIOError("failed to lock descriptor document", err).WithContext(errors.ContextSource, path)
	}
	if !locked {
		return errors.NewConflictError("descriptor document is locked", ctx.Err()).WithContext(errors.ContextSource, path)
	}
	// The lock file stays on disk; removing it would race with the next writer.
	defer lock.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.NewIOError("failed to create temporary document", err).WithContext(errors.ContextSource, path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewIOError("failed to write descriptor document", err).WithContext(errors.ContextSource, path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.NewIOError("failed to sync descriptor document", err).WithContext(errors.ContextSource, path)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIOError("failed to close descriptor document", err).WithContext(errors.ContextSource, path)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.NewIOError("failed to set document permissions", err).WithContext(errors.ContextSource, path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.NewIOError("failed to replace descriptor document", err).WithContext(errors.ContextSource, path)
	}

	return nil
}
