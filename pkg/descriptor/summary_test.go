package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	summary := Summarize(richDescriptors())

	assert.Equal(t, 2, summary.TotalApps)
	assert.Equal(t, 5, summary.TotalInstances)
	assert.Equal(t, 1, summary.AutoRestartApps)
	assert.Equal(t, 1, summary.WatchedApps)
	assert.Equal(t, 2, summary.MemoryLimitedApps)
	require.Len(t, summary.Apps, 2)

	web := summary.Apps[0]
	assert.Equal(t, "binance_alpha_be", web.Name)
	assert.Equal(t, "/home/ubuntu/binance_alpha_be/venv/bin/python -m uvicorn main:app --host 0.0.0.0 --port 8001", web.CommandLine)
	assert.Equal(t, "500 MiB", web.MaxMemoryRestart)
	assert.Equal(t, []string{"NODE_ENV"}, web.EnvKeys)
	assert.True(t, web.AutoRestart)

	worker := summary.Apps[1]
	assert.Equal(t, "cluster", worker.ExecMode)
	assert.False(t, worker.AutoRestart)
	assert.Equal(t, []string{"DATABASE_URL", "EMPTY", "QUOTED"}, worker.EnvKeys)
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, 0, summary.TotalApps)
	assert.Empty(t, summary.Apps)
}

func TestDescriptor_Environ(t *testing.T) {
	d := Descriptor{Env: map[string]string{"B": "2", "A": "x=y"}}
	assert.Equal(t, []string{"A=x=y", "B=2"}, d.Environ())
	assert.Nil(t, Descriptor{}.Environ())
}

func TestDescriptor_AutoRestartEnabled(t *testing.T) {
	off := false
	assert.True(t, Descriptor{}.AutoRestartEnabled())
	assert.False(t, Descriptor{AutoRestart: &off}.AutoRestartEnabled())
}
