// Package location finds descriptor documents in the standard per-OS
// configuration directories.
package location

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/core-tools/hsu-descriptor/pkg/errors"
	"github.com/core-tools/hsu-descriptor/pkg/logging"
)

// DefaultAppName names the configuration subdirectory
const DefaultAppName = "hsu-descriptor"

// DocumentNames are the file names searched for, in order
var DocumentNames = []string{"apps.yaml", "apps.yml", "apps.json", "apps.toml"}

// Config selects where descriptor documents are looked up
type Config struct {
	// Base directory for documents. If empty, uses OS-appropriate default
	BaseDirectory string

	// Service context - affects directory selection
	ServiceContext ServiceContext

	// Application name for subdirectory creation
	AppName string

	// Look in an app subdirectory of the base directory
	UseSubdirectory bool
}

// ServiceContext defines the context the supervisor runs in
type ServiceContext string

const (
	// SystemService reads machine-wide configuration
	SystemService ServiceContext = "system"

	// UserService reads the invoking user's configuration
	UserService ServiceContext = "user"
)

// Locator resolves document directories and finds documents in them
type Locator struct {
	config Config
	logger logging.Logger
}

// NewLocator creates a locator with the given configuration
func NewLocator(config Config, logger logging.Logger) *Locator {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}

	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}

	return &Locator{
		config: config,
		logger: logging.OrNop(logger),
	}
}

// GetRecommendedConfig returns the configuration for a deployment scenario
func GetRecommendedConfig(scenario string, appName string) Config {
	if appName == "" {
		appName = DefaultAppName
	}

	switch strings.ToLower(scenario) {
	case "system", "daemon", "service":
		return Config{
			ServiceContext:  SystemService,
			AppName:         appName,
			UseSubdirectory: true,
		}
	default:
		return Config{
			ServiceContext:  UserService,
			AppName:         appName,
			UseSubdirectory: true,
		}
	}
}

// Directory returns the directory documents are read from
func (l *Locator) Directory() (string, error) {
	baseDir, err := l.getBaseDirectory()
	if err != nil {
		return "", err
	}

	if l.config.UseSubdirectory {
		baseDir = filepath.Join(baseDir, l.config.AppName)
	}

	return baseDir, nil
}

// CandidatePaths lists every path Discover checks, in order
func (l *Locator) CandidatePaths() ([]string, error) {
	dir, err := l.Directory()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(DocumentNames))
	for _, name := range DocumentNames {
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths, nil
}

// Discover returns the candidate documents that exist. Finding none is a
// not-found error.
func (l *Locator) Discover() ([]string, error) {
	candidates, err := l.CandidatePaths()
	if err != nil {
		return nil, err
	}

	var found []string
	for _, path := range candidates {
		info, err := os.Stat(path)
		switch {
		case err == nil && info.Mode().IsRegular():
			l.logger.Debugf("Found descriptor document, path: %s", path)
			found = append(found, path)
		case err == nil:
			l.logger.Warnf("Skipping non-regular file, path: %s", path)
		case !os.IsNotExist(err):
			return nil, errors.NewIOError("failed to access descriptor document", err).WithContext(errors.ContextSource, path)
		}
	}

	if len(found) == 0 {
		dir, _ := l.Directory()
		return nil, errors.NewNotFoundError("no descriptor documents found", nil).
			WithContext("directory", dir).
			WithContext("names", strings.Join(DocumentNames, ", "))
	}

	l.logger.Infof("Discovered %d descriptor documents", len(found))
	return found, nil
}

// getBaseDirectory returns the base directory for the service context
func (l *Locator) getBaseDirectory() (string, error) {
	if l.config.BaseDirectory != "" {
		return l.config.BaseDirectory, nil
	}

	switch l.config.ServiceContext {
	case SystemService:
		return systemConfigDirectory(), nil
	case UserService:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", errors.NewNotFoundError("user configuration directory is unknown", err)
		}
		return dir, nil
	default:
		return "", errors.NewValidationError("unknown service context: "+string(l.config.ServiceContext), nil).WithField("service_context")
	}
}

// systemConfigDirectory returns the machine-wide configuration directory
func systemConfigDirectory() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = "C:\\ProgramData"
		}
		return programData

	case "darwin":
		return "/Library/Application Support"

	default:
		return "/etc"
	}
}
