package pm2

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-descriptor/pkg/descriptor"
	"github.com/core-tools/hsu-descriptor/pkg/errors"
)

const binanceEcosystemJSON = `{
  "apps": [{
    "name": "binance_alpha_be",
    "script": "/home/ubuntu/binance_alpha_be/venv/bin/python",
    "args": "-m uvicorn main:app --host 0.0.0.0 --port 8001",
    "cwd": "/home/ubuntu/binance_alpha_be",
    "env": {
      "NODE_ENV": "production"
    },
    "watch": false,
    "instances": 1,
    "exec_mode": "fork",
    "autorestart": true,
    "max_memory_restart": "500M"
  }]
}`

func binanceDescriptor() descriptor.Descriptor {
	autoRestart := true
	return descriptor.Descriptor{
		Name:             "binance_alpha_be",
		Command:          "/home/ubuntu/binance_alpha_be/venv/bin/python",
		Args:             descriptor.Args{"-m", "uvicorn", "main:app", "--host", "0.0.0.0", "--port", "8001"},
		WorkingDirectory: "/home/ubuntu/binance_alpha_be",
		Env:              map[string]string{"NODE_ENV": "production"},
		Instances:        1,
		ExecMode:         descriptor.ExecModeFork,
		AutoRestart:      &autoRestart,
		MaxMemoryRestart: byteSize(500 * 1024 * 1024),
	}
}

func byteSize(n int64) *descriptor.ByteSize {
	size := descriptor.ByteSize(n)
	return &size
}

func withCPUs(t *testing.T, n int) {
	t.Helper()
	saved := numCPU
	numCPU = func() int { return n }
	t.Cleanup(func() { numCPU = saved })
}

func TestLoad_Ecosystem(t *testing.T) {
	descriptors, err := Load([]byte(binanceEcosystemJSON), Options{})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, binanceDescriptor(), descriptors[0])
}

func TestLoad_YAML(t *testing.T) {
	data := `
apps:
  - name: binance_alpha_be
    script: /home/ubuntu/binance_alpha_be/venv/bin/python
    args: -m uvicorn main:app --host 0.0.0.0 --port 8001
    cwd: /home/ubuntu/binance_alpha_be
    env:
      NODE_ENV: production
    watch: false
    instances: 1
    exec_mode: fork_mode
    autorestart: true
    max_memory_restart: 500M
`
	descriptors, err := Load([]byte(data), Options{Format: descriptor.FormatYAML})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, binanceDescriptor(), descriptors[0])
}

func TestParse_DocumentShapes(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format descriptor.Format
		apps   int
	}{
		{"json_object", binanceEcosystemJSON, descriptor.FormatJSON, 1},
		{"json_list", `[{"name": "a", "script": "a.sh"}, {"name": "b", "script": "b.sh"}]`, descriptor.FormatJSON, 2},
		{"json_single_app", `{"name": "a", "script": "a.sh"}`, descriptor.FormatJSON, 1},
		{"json_empty", `  `, descriptor.FormatJSON, 0},
		{"yaml_list", "- name: a\n  script: a.sh\n", descriptor.FormatYAML, 1},
		{"yaml_single_app", "name: a\nscript: a.sh\n", descriptor.FormatYAML, 1},
		{"yaml_empty", "", descriptor.FormatYAML, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eco, err := Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)
			assert.Len(t, eco.Apps, tt.apps)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format descriptor.Format
	}{
		{"broken_json", `{"apps": [`, descriptor.FormatJSON},
		{"bad_instances", `{"apps": [{"name": "a", "script": "a", "instances": "many"}]}`, descriptor.FormatJSON},
		{"bad_memory", `{"apps": [{"name": "a", "script": "a", "max_memory_restart": "huge"}]}`, descriptor.FormatJSON},
		{"nested_env", `{"apps": [{"name": "a", "script": "a", "env": {"A": {"B": 1}}}]}`, descriptor.FormatJSON},
		{"yaml_scalar_root", "just text", descriptor.FormatYAML},
		{"toml", `name = "a"`, descriptor.FormatTOML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.True(t, errors.IsParseError(err))
		})
	}
}

func TestConvert_Interpreter(t *testing.T) {
	data := `{"apps": [{
		"name": "api",
		"script": "server.js",
		"interpreter": "/usr/bin/node",
		"interpreter_args": ["--max-old-space-size=256"],
		"args": ["--port", "3000"]
	}]}`

	descriptors, err := Load([]byte(data), Options{})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "/usr/bin/node", descriptors[0].Command)
	assert.Equal(t, descriptor.Args{"--max-old-space-size=256", "server.js", "--port", "3000"}, descriptors[0].Args)

	data = `{"name": "bin", "script": "/opt/bin/run", "interpreter": "none", "args": "--once"}`
	descriptors, err = Load([]byte(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, "/opt/bin/run", descriptors[0].Command)
	assert.Equal(t, descriptor.Args{"--once"}, descriptors[0].Args)
}

func TestConvert_Instances(t *testing.T) {
	withCPUs(t, 8)

	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{"absent", ``, 1},
		{"number", `, "instances": 3`, 3},
		{"max", `, "instances": "max"`, 8},
		{"zero", `, "instances": 0`, 8},
		{"negative", `, "instances": -2`, 6},
		{"more_negative_than_cpus", `, "instances": -20`, 1},
		{"numeric_string", `, "instances": "4"`, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := `{"name": "w", "script": "/bin/w"` + tt.value + `}`
			descriptors, err := Load([]byte(data), Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, descriptors[0].Instances)
		})
	}
}

func TestConvert_ExecModes(t *testing.T) {
	tests := []struct {
		mode     string
		expected descriptor.ExecMode
	}{
		{"", descriptor.ExecModeFork},
		{"fork", descriptor.ExecModeFork},
		{"fork_mode", descriptor.ExecModeFork},
		{"cluster", descriptor.ExecModeCluster},
		{"cluster_mode", descriptor.ExecModeCluster},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			descriptors, err := Convert(Ecosystem{Apps: []App{{Name: "w", Script: "/bin/w", ExecMode: tt.mode}}}, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, descriptors[0].ExecMode)
		})
	}

	_, err := Convert(Ecosystem{Apps: []App{{Name: "w", Script: "/bin/w", ExecMode: "thread"}}}, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, "exec_mode", errors.FieldOf(err))
}

func TestConvert_EnvValuesAndOverlay(t *testing.T) {
	data := `{"apps": [{
		"name": "api",
		"script": "/opt/api",
		"env": {"PORT": 8080, "DEBUG": true, "NODE_ENV": "development", "EMPTY": null},
		"env_production": {"NODE_ENV": "production", "DEBUG": false}
	}]}`

	descriptors, err := Load([]byte(data), Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"PORT":     "8080",
		"DEBUG":    "true",
		"NODE_ENV": "development",
		"EMPTY":    "",
	}, descriptors[0].Env)

	descriptors, err = Load([]byte(data), Options{Environment: "production"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"PORT":     "8080",
		"DEBUG":    "false",
		"NODE_ENV": "production",
		"EMPTY":    "",
	}, descriptors[0].Env)

	descriptors, err = Load([]byte(data), Options{Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "development", descriptors[0].Env["NODE_ENV"])
}

func TestConvert_YAMLOverlay(t *testing.T) {
	data := `
name: api
script: /opt/api
env:
  PORT: 8080
env_production:
  PORT: 80
watch:
  - src
  - lib
`
	descriptors, err := Load([]byte(data), Options{Format: descriptor.FormatYAML, Environment: "production"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PORT": "80"}, descriptors[0].Env)
	assert.True(t, descriptors[0].Watch)
}

func TestConvert_RestartOptions(t *testing.T) {
	data := `{"name": "w", "script": "/bin/w", "max_restarts": 10, "min_uptime": "1m", "restart_delay": 1500, "kill_timeout": 3000}`

	descriptors, err := Load([]byte(data), Options{})
	require.NoError(t, err)
	require.NotNil(t, descriptors[0].Restart)
	assert.Equal(t, descriptor.RestartOptions{
		MaxRestarts:  10,
		MinUptime:    descriptor.Duration(time.Minute),
		RestartDelay: descriptor.Duration(1500 * time.Millisecond),
		KillTimeout:  descriptor.Duration(3 * time.Second),
	}, *descriptors[0].Restart)
}

func TestConvert_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"missing_script", `{"name": "w"}`, "command"},
		{"missing_name", `{"script": "/bin/w"}`, "name"},
		{"duplicate", `[{"name": "w", "script": "/bin/w"}, {"name": "w", "script": "/bin/x"}]`, "name"},
		{"relative_cwd", `{"name": "w", "script": "/bin/w", "cwd": "app"}`, "cwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.data), Options{})
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			assert.Equal(t, tt.field, errors.FieldOf(err))
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "ecosystem.json")
	require.NoError(t, os.WriteFile(path, []byte(binanceEcosystemJSON), 0o644))

	descriptors, err := LoadFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []descriptor.Descriptor{binanceDescriptor()}, descriptors)

	relative := filepath.Join(dir, "relative.yaml")
	require.NoError(t, os.WriteFile(relative, []byte("name: w\nscript: /bin/w\ncwd: app\n"), 0o644))

	descriptors, err = LoadFile(relative, Options{})
	require.NoError(t, err)
	absDir, err := filepath.Abs(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(absDir, "app"), descriptors[0].WorkingDirectory)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "ecosystem.config.js"), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))

	_, err = LoadFile(filepath.Join(dir, "missing.json"), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"apps": `), 0o644))
	_, err = LoadFile(broken, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))

	var domainErr *errors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, broken, domainErr.Context[errors.ContextSource])
}

func TestExport_RoundTrip(t *testing.T) {
	off := false
	original := []descriptor.Descriptor{
		binanceDescriptor(),
		{
			Name:             "worker",
			Command:          "/usr/local/bin/worker",
			Args:             descriptor.Args{"--queue", "emails and sms"},
			Watch:            true,
			Instances:        4,
			ExecMode:         descriptor.ExecModeCluster,
			AutoRestart:      &off,
			MaxMemoryRestart: byteSize(1536),
			Restart: &descriptor.RestartOptions{
				MaxRestarts:  5,
				MinUptime:    descriptor.Duration(90 * time.Second),
				RestartDelay: descriptor.Duration(1500 * time.Millisecond),
				KillTimeout:  descriptor.Duration(5 * time.Second),
			},
		},
	}

	data, err := Export(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"interpreter": "none"`)
	assert.Contains(t, string(data), `"restart_delay": 1500`)
	assert.Contains(t, string(data), `"max_memory_restart": "500M"`)

	imported, err := Load(data, Options{})
	require.NoError(t, err)
	assert.Equal(t, original, imported)
}
