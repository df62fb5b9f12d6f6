package location

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-descriptor/pkg/errors"
)

func TestNewLocator_WithDefaults(t *testing.T) {
	locator := NewLocator(Config{}, nil)

	assert.Equal(t, DefaultAppName, locator.config.AppName)
	assert.Equal(t, UserService, locator.config.ServiceContext)
}

func TestDirectory(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name:     "explicit_base",
			config:   Config{BaseDirectory: "/opt/conf"},
			expected: "/opt/conf",
		},
		{
			name:     "explicit_base_with_subdirectory",
			config:   Config{BaseDirectory: "/opt/conf", AppName: "sup", UseSubdirectory: true},
			expected: filepath.Join("/opt/conf", "sup"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, err := NewLocator(tt.config, nil).Directory()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dir)
		})
	}
}

func TestDirectory_SystemService(t *testing.T) {
	dir, err := NewLocator(GetRecommendedConfig("daemon", "sup"), nil).Directory()
	require.NoError(t, err)
	assert.Equal(t, "sup", filepath.Base(dir))

	if runtime.GOOS == "linux" {
		assert.Equal(t, "/etc/sup", dir)
	}
}

func TestDirectory_UnknownContext(t *testing.T) {
	_, err := NewLocator(Config{ServiceContext: "session"}, nil).Directory()
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestGetRecommendedConfig(t *testing.T) {
	assert.Equal(t, SystemService, GetRecommendedConfig("service", "").ServiceContext)
	assert.Equal(t, UserService, GetRecommendedConfig("user", "").ServiceContext)
	assert.Equal(t, UserService, GetRecommendedConfig("anything", "").ServiceContext)
	assert.Equal(t, DefaultAppName, GetRecommendedConfig("user", "").AppName)
}

func TestCandidatePaths(t *testing.T) {
	paths, err := NewLocator(Config{BaseDirectory: "/srv"}, nil).CandidatePaths()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/srv", "apps.yaml"),
		filepath.Join("/srv", "apps.yml"),
		filepath.Join("/srv", "apps.json"),
		filepath.Join("/srv", "apps.toml"),
	}, paths)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "apps.toml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "apps.yaml"), []byte(""), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "apps.json"), 0o755))

	found, err := NewLocator(Config{BaseDirectory: dir}, nil).Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "apps.yaml"),
		filepath.Join(dir, "apps.toml"),
	}, found)
}

func TestDiscover_NothingFound(t *testing.T) {
	_, err := NewLocator(Config{BaseDirectory: t.TempDir()}, nil).Discover()
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}
