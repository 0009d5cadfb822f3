package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/copy-go/internal/config"
	"github.com/tonimelisma/copy-go/internal/parts"
	"github.com/tonimelisma/copy-go/internal/rpc"
	"github.com/tonimelisma/copy-go/testutil"
)

// cliEnv runs the real command tree against an in-memory store behind an
// httptest server. newRootCmd rebinds the global flags, so these tests
// must not run in parallel.
type cliEnv struct {
	t       *testing.T
	store   *testutil.Store
	dir     string
	cfgPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	store := testutil.NewStore()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvTokenFile, "")
	t.Setenv(config.EnvAPIHost, "")

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")

	cfg := fmt.Sprintf(`
[api]
host = %q
token_file = %q

[transfers]
part_size = "16B"

[network]
max_retries = 0

[logging]
log_level = "error"
log_format = "text"

[journal]
path = %q
`, srv.URL, filepath.Join(dir, "token.json"), filepath.Join(dir, "journal.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	env := &cliEnv{t: t, store: store, dir: dir, cfgPath: cfgPath}
	env.mustRun("test-access-token\n", "login")

	return env
}

func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.cfgPath, "--quiet"}, args...))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func (e *cliEnv) mustRun(stdin string, args ...string) string {
	e.t.Helper()

	out, err := e.run(stdin, args...)
	require.NoError(e.t, err, "copy-go %s", strings.Join(args, " "))

	return out
}

func (e *cliEnv) writeLocal(name string, data []byte) string {
	e.t.Helper()

	p := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(p, data, 0o600))

	return p
}

func sample(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}

	return b
}

func TestCLI_PutGetRoundTrip(t *testing.T) {
	env := newCLIEnv(t)
	data := sample(50)
	local := env.writeLocal("a.bin", data)

	env.mustRun("", "put", local, "/docs/a.bin")

	assert.Equal(t, 4, env.store.PartCount())
	assert.Equal(t, 1, env.store.Calls(rpc.MethodUpdateObject))

	dst := filepath.Join(env.dir, "out.bin")
	env.mustRun("", "get", "/docs/a.bin", dst)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	stdout := env.mustRun("", "get", "/docs/a.bin", "-")
	assert.Equal(t, string(data), stdout)
}

func TestCLI_PutDeduplicates(t *testing.T) {
	env := newCLIEnv(t)
	local := env.writeLocal("a.bin", sample(40))

	env.mustRun("", "put", local, "/one.bin")
	stored := env.store.PartCount()
	sends := env.store.Calls(rpc.MethodSendParts)

	out := env.mustRun("", "--json", "put", local, "/two.bin")

	var res []putOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 1)
	assert.Equal(t, "/two.bin", res[0].Remote)
	assert.Equal(t, 0, res[0].Sent)
	assert.Equal(t, res[0].Parts, res[0].Skipped)

	assert.Equal(t, stored, env.store.PartCount())
	assert.Equal(t, sends, env.store.Calls(rpc.MethodSendParts))
}

func TestCLI_PutMissingFileFails(t *testing.T) {
	env := newCLIEnv(t)
	ok := env.writeLocal("ok.bin", sample(5))

	_, err := env.run("", "put", ok, filepath.Join(env.dir, "missing.bin"), "/dst")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.bin")

	out := env.mustRun("", "--json", "ls", "/dst")
	assert.Contains(t, out, `"name": "ok.bin"`)
}

func TestCLI_HistoryAndFromJournal(t *testing.T) {
	env := newCLIEnv(t)
	data := sample(33)
	local := env.writeLocal("report.txt", data)

	env.mustRun("", "put", local, "/reports/")

	out := env.mustRun("", "--json", "history")

	var hist []historyEntry
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, "/reports/report.txt", hist[0].RemotePath)
	assert.Equal(t, uint64(33), hist[0].Size)
	assert.Equal(t, 3, hist[0].Parts)
	assert.Equal(t, 3, hist[0].PartsSent)

	// The metadata is gone but the parts are still stored.
	env.mustRun("", "rm", "/reports/report.txt")

	_, err := env.run("", "get", "/reports/report.txt", filepath.Join(env.dir, "x"))
	require.ErrorIs(t, err, rpc.ErrNotFound)

	dst := filepath.Join(env.dir, "restored.txt")
	env.mustRun("", "get", "--from-journal", "/reports/report.txt", dst)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCLI_GetInto(t *testing.T) {
	env := newCLIEnv(t)
	a := env.writeLocal("a.txt", sample(20))
	b := env.writeLocal("b.txt", sample(7))

	env.mustRun("", "put", a, b, "/batch")

	dir := filepath.Join(env.dir, "downloads")
	env.mustRun("", "get", "--into", dir, "/batch/a.txt", "/batch/b.txt")

	for name, want := range map[string][]byte{"a.txt": sample(20), "b.txt": sample(7)} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestCLI_FolderCommands(t *testing.T) {
	env := newCLIEnv(t)
	local := env.writeLocal("pic.jpg", sample(3))

	env.mustRun("", "mkdir", "/photos")
	assert.Equal(t, "[]\n", env.mustRun("", "--json", "ls", "/photos"))

	env.mustRun("", "put", local, "/photos/")
	env.mustRun("", "mv", "/photos/pic.jpg", "/photos/renamed.jpg")

	var entries []lsEntry
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("", "--json", "ls", "/photos")), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "renamed.jpg", entries[0].Name)
	assert.Equal(t, "file", entries[0].Type)
	assert.Equal(t, uint64(3), entries[0].Size)

	stat := env.mustRun("", "stat", "/photos/renamed.jpg")
	assert.Contains(t, stat, "Parts:    1")

	_, err := env.run("", "rm", "/photos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use -r")

	env.mustRun("", "rm", "-r", "/photos")

	_, err = env.run("", "ls", "/photos")
	assert.ErrorIs(t, err, rpc.ErrNotFound)
}

func TestCLI_Logout(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun("", "logout")

	_, err := env.run("", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")

	// Logging out twice is not an error.
	env.mustRun("", "logout")
}

func TestCLI_LoginRequiresToken(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("\n\n", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token")
}

func TestCLI_ConfigShow(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("", "--share", "42", "config", "show")
	assert.Contains(t, out, env.cfgPath)
	assert.Contains(t, out, "[transfers]")
	assert.Regexp(t, `part_size\s+= "16B"`, out)
	assert.Regexp(t, `share_id\s+= 42`, out)
}

func TestCLI_InvalidShare(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("", "--share", "abc", "ls")
	assert.Error(t, err)
}

func TestPutJobs(t *testing.T) {
	share := parts.ShareID(7)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"single file to root", []string{"dir/a.txt"}, []string{"/a.txt"}},
		{"explicit remote file", []string{"a.txt", "/x/b.txt"}, []string{"/x/b.txt"}},
		{"remote folder", []string{"a.txt", "/x/"}, []string{"/x/a.txt"}},
		{"several files", []string{"a.txt", "sub/b.txt", "/x"}, []string{"/x/a.txt", "/x/b.txt"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			jobs := putJobs(tc.args, share)
			require.Len(t, jobs, len(tc.want))

			for i, j := range jobs {
				assert.Equal(t, tc.want[i], j.RemotePath)
				assert.Equal(t, share, j.Share)
			}
		})
	}
}

func TestLocalTarget(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "a.txt", localTarget("/x/a.txt", ""))
	assert.Equal(t, filepath.Join(dir, "a.txt"), localTarget("/x/a.txt", dir))
	assert.Equal(t, "/tmp/other.txt", localTarget("/x/a.txt", "/tmp/other.txt"))
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "auto", false)
	logger.Info("hello")

	assert.True(t, json.Valid(buf.Bytes()), "auto off a terminal logs JSON")
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))

	buf.Reset()
	newLogger(&buf, "debug", "auto", true).Debug("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "time="), "auto on a terminal logs text")

	assert.True(t, newLogger(io.Discard, "bogus", "text", false).Enabled(ctx, slog.LevelWarn))
	assert.False(t, newLogger(io.Discard, "bogus", "text", false).Enabled(ctx, slog.LevelInfo))
}

func TestReadToken(t *testing.T) {
	tok, err := readToken(strings.NewReader("\n  abc123  \nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)

	_, err = readToken(strings.NewReader(""))
	assert.Error(t, err)
}
