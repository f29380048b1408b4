package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/qa-environment/internal/answerer"
)

func TestBuildRequest(t *testing.T) {
	t.Run("questions with shared context", func(t *testing.T) {
		req, err := buildRequest(nil, "", []string{"Who?", "When?"}, []string{"doc one"})
		require.NoError(t, err)
		require.Len(t, req.Queries, 2)
		assert.Equal(t, "1", req.Queries[0].ID)
		assert.Equal(t, "When?", req.Queries[1].Question)
		assert.Equal(t, "2", req.Queries[1].ID)
		require.Len(t, req.Queries[1].Context, 1)
		assert.Equal(t, "doc one", req.Queries[1].Context[0].Document)
	})

	t.Run("request from stdin", func(t *testing.T) {
		stdin := strings.NewReader(`{"queries":[{"question":"Who?","id":"q7"}]}`)
		req, err := buildRequest(stdin, "-", nil, nil)
		require.NoError(t, err)
		require.Len(t, req.Queries, 1)
		assert.Equal(t, "q7", req.Queries[0].ID)
	})

	t.Run("request from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "req.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"queries":[{"question":"Where?"}]}`), 0o600))
		req, err := buildRequest(nil, path, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "Where?", req.Queries[0].Question)
	})

	tests := []struct {
		name      string
		file      string
		questions []string
		stdin     string
		wantErr   string
	}{
		{name: "nothing given", wantErr: "at least one question"},
		{name: "both given", file: "-", questions: []string{"x"}, wantErr: "mutually exclusive"},
		{name: "bad json", file: "-", stdin: "{", wantErr: "failed to parse request file"},
		{name: "missing file", file: "/does/not/exist.json", wantErr: "failed to open request file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildRequest(strings.NewReader(tt.stdin), tt.file, tt.questions, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func newTestCmd(f *envFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("log-format", "text", "")
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().Bool("verbose", false, "")
	return cmd
}

func TestLoadConfigFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
answerer:
  backend: llm
dispatcher:
  concurrency: 4
`), 0o600))

	var f envFlags
	cmd := newTestCmd(&f)
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", path,
		"--concurrency", "2",
		"--query-timeout", "5s",
		"--debug",
	}))

	cfg, err := loadConfig(cmd, &f)
	require.NoError(t, err)
	assert.Equal(t, answerer.BackendLLM, cfg.Answerer.Backend, "unset flags keep the file value")
	assert.Equal(t, 2, cfg.Dispatcher.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Dispatcher.QueryTimeout)
	assert.True(t, cfg.Logging.Debug)
}

func TestLoadConfigInvalid(t *testing.T) {
	var f envFlags
	cmd := newTestCmd(&f)
	require.NoError(t, cmd.ParseFlags([]string{"--policy", "drop_everything"}))

	_, err := loadConfig(cmd, &f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewEnvironment(t *testing.T) {
	var f envFlags
	cmd := newTestCmd(&f)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := loadConfig(cmd, &f)
	require.NoError(t, err)

	svc, err := newEnvironment(cfg, envDeps{})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}
