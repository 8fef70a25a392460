package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/groupsync/internal/coordinator"
	"github.com/dreamware/groupsync/internal/groupserver"
	"github.com/dreamware/groupsync/internal/storage"
)

type testHost struct {
	srv   *groupserver.Server
	store *storage.MemoryStore
	url   string
}

func startHosts(t *testing.T, n int) []testHost {
	t.Helper()
	hosts := make([]testHost, n)
	for i := range hosts {
		store := storage.NewMemoryStore()
		srv := groupserver.New(store, nil)
		ts := httptest.NewServer(srv.Handler())
		t.Cleanup(ts.Close)
		hosts[i] = testHost{srv: srv, store: store, url: ts.URL}
	}
	return hosts
}

// baseArgs points groupctl at hosts with fast retries and a private
// rollback file.
func baseArgs(t *testing.T, hosts []testHost) ([]string, string) {
	t.Helper()
	urls := make([]string, len(hosts))
	for i, h := range hosts {
		urls[i] = h.url
	}
	rollbackFile := filepath.Join(t.TempDir(), "rollback.txt")
	return []string{
		"--hosts", strings.Join(urls, ","),
		"--rollback-file", rollbackFile,
		"--retry-timeout", "1ms",
		"--max-retries", "2",
		"--log-level", "error",
	}, rollbackFile
}

func run(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	err := execute(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), err
}

func failMethod(method string) func(*http.Request) bool {
	return func(r *http.Request) bool { return r.Method == method }
}

// TestCreateAndStatus creates a group on two hosts and reads its status back.
func TestCreateAndStatus(t *testing.T) {
	hosts := startHosts(t, 3)
	flags, _ := baseArgs(t, hosts)

	out, _, err := run(append([]string{"create", "admins"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "Group \"admins\" created on 3 hosts\n", out)
	for _, h := range hosts {
		assert.True(t, h.store.Has("admins"))
	}

	out, _, err = run(append([]string{"status", "--group", "admins"}, flags...)...)
	require.NoError(t, err)
	want := hosts[0].url + ": Exists\n" + hosts[1].url + ": Exists\n" + hosts[2].url + ": Exists\n"
	assert.Equal(t, want, out)

	out, _, err = run(append([]string{"delete", "admins"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "Group \"admins\" deleted from 3 hosts\n", out)

	out, _, err = run(append([]string{"status", "admins"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, ": Does not exist\n"))
}

// TestCreateRolledBack verifies that a rolled back create exits with an
// error and leaves no group or record behind.
func TestCreateRolledBack(t *testing.T) {
	hosts := startHosts(t, 3)
	hosts[2].srv.SetFaultInjector(failMethod(http.MethodPost))
	flags, rollbackFile := baseArgs(t, hosts)

	_, errOut, err := run(append([]string{"create", "ops"}, flags...)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinator.ErrOperationFailed)
	assert.Contains(t, errOut, "Error: ")

	for _, h := range hosts {
		assert.False(t, h.store.Has("ops"))
	}
	assert.NoFileExists(t, rollbackFile)
}

// TestPendingRollbackLifecycle walks a stored rollback from failure to the rollback command.
func TestPendingRollbackLifecycle(t *testing.T) {
	hosts := startHosts(t, 3)
	hosts[0].srv.SetFaultInjector(failMethod(http.MethodDelete))
	hosts[2].srv.SetFaultInjector(failMethod(http.MethodPost))
	flags, rollbackFile := baseArgs(t, hosts)

	_, _, err := run(append([]string{"create", "ops"}, flags...)...)
	require.ErrorIs(t, err, coordinator.ErrCompensationFailed)
	require.FileExists(t, rollbackFile)
	assert.True(t, hosts[0].store.Has("ops"))
	assert.False(t, hosts[1].store.Has("ops"))

	data, err := os.ReadFile(rollbackFile)
	require.NoError(t, err)
	assert.Equal(t, "delete\nops\n"+hosts[0].url+"\n", string(data))

	// host 0 still refuses deletes, so a new operation is refused too.
	_, _, err = run(append([]string{"create", "other"}, flags...)...)
	require.ErrorIs(t, err, coordinator.ErrResumePending)
	for _, h := range hosts {
		assert.False(t, h.store.Has("other"))
	}

	hosts[0].srv.SetFaultInjector(nil)
	out, _, err := run(append([]string{"rollback"}, flags...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Pending rollback: delete \"ops\" on "+hosts[0].url)
	assert.Contains(t, out, "Rollback complete")
	assert.False(t, hosts[0].store.Has("ops"))
	assert.NoFileExists(t, rollbackFile)

	out, _, err = run(append([]string{"rollback"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, "No pending rollbacks found\n", out)
}

// TestStatusUnreachableHost verifies that an unreachable host is shown as not existing.
func TestStatusUnreachableHost(t *testing.T) {
	hosts := startHosts(t, 1)
	require.NoError(t, hosts[0].store.Add("g"))
	flags, _ := baseArgs(t, hosts)
	flags[1] += ",127.0.0.1:1"

	out, _, err := run(append([]string{"status", "g"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, hosts[0].url+": Exists\n127.0.0.1:1: Does not exist\n", out)
}

// TestSimulate runs status with simulated hosts.
func TestSimulate(t *testing.T) {
	flags := []string{
		"--hosts", "a,b,c",
		"--simulate",
		"--rollback-store", "memory",
		"--log-level", "error",
	}
	out, _, err := run(append([]string{"status", "g"}, flags...)...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "a: "))
	assert.True(t, strings.HasPrefix(lines[2], "c: "))
}

// TestHostsFile verifies that hosts are read from --hosts-file.
func TestHostsFile(t *testing.T) {
	hosts := startHosts(t, 2)
	dir := t.TempDir()
	hostsFile := filepath.Join(dir, "hosts.txt")
	require.NoError(t, os.WriteFile(hostsFile, []byte("# fleet\n"+hosts[0].url+"\n\n"+hosts[1].url+"\n"), 0o644))

	out, _, err := run("create", "g",
		"--hosts-file", hostsFile,
		"--rollback-file", filepath.Join(dir, "rollback.txt"),
		"--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "created on 2 hosts")
	assert.True(t, hosts[1].store.Has("g"))
}

// TestConfigFileAndMetrics loads a config file and checks the metrics textfile.
func TestConfigFileAndMetrics(t *testing.T) {
	hosts := startHosts(t, 1)
	dir := t.TempDir()
	metricsFile := filepath.Join(dir, "groupsync.prom")
	cfgFile := filepath.Join(dir, "groupsync.yaml")
	cfg := "hosts:\n  - " + hosts[0].url + "\n" +
		"rollback:\n  path: " + filepath.Join(dir, "rollback.txt") + "\n" +
		"metrics:\n  textfile: " + metricsFile + "\n" +
		"log:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o644))

	_, _, err := run("create", "g", "--config", cfgFile)
	require.NoError(t, err)
	assert.True(t, hosts[0].store.Has("g"))

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "groupsync_operations_total")
}

// TestArgumentErrors covers missing and conflicting group arguments.
func TestArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"missing group", []string{"create", "--hosts", "a"}, "group id is required"},
		{"group twice", []string{"delete", "a", "--group", "b", "--hosts", "a"}, "group given twice"},
		{"bad retries", []string{"status", "g", "--hosts", "a", "--max-retries", "0"}, "max_retries"},
		{"bad store", []string{"status", "g", "--hosts", "a", "--rollback-store", "s3"}, "rollback.type"},
		{"rollback takes no args", []string{"rollback", "g"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, err := run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, errOut, tt.msg)
		})
	}
}

// TestHealth runs the health command against live hosts and a dead one.
func TestHealth(t *testing.T) {
	hosts := startHosts(t, 2)
	flags, _ := baseArgs(t, hosts)

	out, _, err := run(append([]string{"health"}, flags...)...)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, ": healthy ("))

	flags[1] += ",127.0.0.1:1"
	out, errOut, err := run(append([]string{"health"}, flags...)...)
	require.Error(t, err)
	assert.Contains(t, out, "127.0.0.1:1: unhealthy")
	assert.Contains(t, errOut, "1 of 3 hosts unhealthy")
}
