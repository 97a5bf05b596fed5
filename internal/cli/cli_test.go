package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/swipe-sync/pkg/core"
)

func writeConfig(t *testing.T, apiURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "swipesync.yaml")
	body := fmt.Sprintf(`api_url: %s
log_level: error
storage:
  driver: sqlite
  path: %s
`, apiURL, filepath.Join(dir, "queue.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEnqueueStatusClear(t *testing.T) {
	cfg := writeConfig(t, "http://localhost:3000")

	out, err := run(t, "--config", cfg, "enqueue", "accept", "J1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "action_1_"), out)

	_, err = run(t, "--config", cfg, "enqueue", "report", "J2", "--reason", "spam")
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "--format", "json", "status")
	require.NoError(t, err)

	var status statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Equal(t, 2, status.QueueLength)
	assert.Equal(t, core.ActionAccept, status.Actions[0].Type)
	assert.Equal(t, "J2", status.Actions[1].Payload.JobID)
	assert.Equal(t, "spam", status.Actions[1].Payload.Reason)

	out, err = run(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "queued=2")
	assert.Contains(t, out, "\taccept\tJ1\tretries=0")

	out, err = run(t, "--config", cfg, "clear")
	require.NoError(t, err)
	assert.Equal(t, "cleared=2\n", out)

	out, err = run(t, "--config", cfg, "status")
	require.NoError(t, err)
	assert.Equal(t, "queued=0\n", out)
}

func TestEnqueue_Validation(t *testing.T) {
	cfg := writeConfig(t, "http://localhost:3000")

	_, err := run(t, "--config", cfg, "enqueue", "delete", "J1")
	assert.ErrorContains(t, err, "unknown action type")

	_, err = run(t, "--config", cfg, "enqueue", "accept", "../etc/passwd")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "enqueue", "accept")
	assert.Error(t, err)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "status")
	assert.ErrorContains(t, err, "invalid format")
}

func TestProcess_DeliversQueue(t *testing.T) {
	var delivered []string
	r := chi.NewRouter()
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {})
	r.Post("/api/skipped", func(w http.ResponseWriter, r *http.Request) {
		delivered = append(delivered, r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	cfg := writeConfig(t, srv.URL)
	_, err := run(t, "--config", cfg, "enqueue", "skip", "J7")
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "process")
	require.NoError(t, err)
	assert.Equal(t, "remaining=0\n", out)
	require.Len(t, delivered, 1)
	assert.True(t, strings.HasPrefix(delivered[0], "skip:J7:"))
}

func TestProcess_BackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := writeConfig(t, url)
	_, err := run(t, "--config", cfg, "process")
	assert.ErrorContains(t, err, "unreachable")
}
