package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/coordinator"
	"github.com/dreamware/groupsync/internal/executor"
	"github.com/dreamware/groupsync/internal/groupserver"
	"github.com/dreamware/groupsync/internal/rollback"
	"github.com/dreamware/groupsync/internal/storage"
)

// Fleet is a set of in-process hosts plus the pieces groupctl wires around
// them.
type Fleet struct {
	t       *testing.T
	servers []*groupserver.Server
	stores  []*storage.MemoryStore
	hosts   []cluster.Host
	records *rollback.FileStore
}

func NewFleet(t *testing.T, n int) *Fleet {
	t.Helper()
	f := &Fleet{
		t:       t,
		records: rollback.NewFileStore(filepath.Join(t.TempDir(), "rollback.txt")),
	}
	for i := 0; i < n; i++ {
		store := storage.NewMemoryStore()
		srv := groupserver.New(store, nil)
		ts := httptest.NewServer(srv.Handler())
		t.Cleanup(ts.Close)
		f.servers = append(f.servers, srv)
		f.stores = append(f.stores, store)
		f.hosts = append(f.hosts, cluster.Host(ts.Listener.Addr().String()))
	}
	return f
}

// Coordinator returns a fresh coordinator, as a new groupctl process would
// build one.
func (f *Fleet) Coordinator() *coordinator.Coordinator {
	f.t.Helper()
	exec, err := executor.New(executor.Options{
		MaxRetries:     2,
		RetryTimeout:   time.Millisecond,
		RequestTimeout: time.Second,
	}, nil)
	require.NoError(f.t, err)
	c, err := coordinator.New(f.hosts, exec, f.records)
	require.NoError(f.t, err)
	return c
}

// Members returns which hosts hold groupID.
func (f *Fleet) Members(groupID string) []bool {
	out := make([]bool, len(f.stores))
	for i, s := range f.stores {
		out[i] = s.Has(groupID)
	}
	return out
}

func all(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func rejectMethod(method string) func(*http.Request) bool {
	return func(r *http.Request) bool { return r.Method == method }
}

// TestFleet_CreateDelete creates and deletes a group across the fleet.
func TestFleet_CreateDelete(t *testing.T) {
	ctx := context.Background()
	f := NewFleet(t, 4)
	c := f.Coordinator()

	require.NoError(t, c.ApplyCreate(ctx, "eng"))
	assert.Equal(t, all(true, 4), f.Members("eng"))

	status := c.GetStatus(ctx, "eng")
	for _, h := range f.hosts {
		assert.True(t, status[h], string(h))
	}

	require.NoError(t, c.ApplyDelete(ctx, "eng"))
	assert.Equal(t, all(false, 4), f.Members("eng"))
}

// TestFleet_FailureIsRolledBack verifies that a failing host leaves no group behind.
func TestFleet_FailureIsRolledBack(t *testing.T) {
	ctx := context.Background()
	f := NewFleet(t, 3)
	f.servers[1].SetFaultInjector(rejectMethod(http.MethodPost))

	err := f.Coordinator().ApplyCreate(ctx, "eng")
	require.ErrorIs(t, err, coordinator.ErrOperationFailed)

	var opErr *coordinator.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, f.hosts[1], opErr.FailedHost)
	assert.Equal(t, all(false, 3), f.Members("eng"))

	rec, err := f.records.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

// TestFleet_RollbackSurvivesRestart verifies that a stored rollback is
// finished by a new coordinator.
func TestFleet_RollbackSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	f := NewFleet(t, 3)
	require.NoError(t, f.Coordinator().ApplyCreate(ctx, "eng"))

	// Deleting fails on the last host; re-creating fails on the first.
	f.servers[2].SetFaultInjector(rejectMethod(http.MethodDelete))
	f.servers[0].SetFaultInjector(rejectMethod(http.MethodPost))

	err := f.Coordinator().ApplyDelete(ctx, "eng")
	require.ErrorIs(t, err, coordinator.ErrCompensationFailed)
	assert.Equal(t, []bool{false, true, true}, f.Members("eng"))

	rec, err := f.records.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, cluster.Create, rec.Operation)
	assert.Equal(t, []cluster.Host{f.hosts[0]}, rec.Hosts)

	// A new process sees the record and finishes it before doing anything else.
	f.servers[0].SetFaultInjector(nil)
	f.servers[2].SetFaultInjector(nil)
	require.NoError(t, f.Coordinator().ApplyCreate(ctx, "ops"))
	assert.Equal(t, all(true, 3), f.Members("eng"))
	assert.Equal(t, all(true, 3), f.Members("ops"))

	rec, err = f.records.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

// Under random faults every create must leave the fleet either fully
// updated, fully reverted, or reverted except for hosts named in the
// stored record.
func TestFleet_RandomFaults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fault sweep in short mode")
	}
	ctx := context.Background()
	f := NewFleet(t, 4)
	for i, srv := range f.servers {
		srv.SetFaultInjector(groupserver.RandomFaults(0.3, int64(i+1)))
	}

	for _, group := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		err := f.Coordinator().ApplyCreate(ctx, group)
		members := f.Members(group)

		if err == nil {
			assert.Equal(t, all(true, 4), members, group)
			continue
		}
		if errors.Is(err, coordinator.ErrResumePending) {
			assert.Equal(t, all(false, 4), members, group)
			continue
		}

		rec, lerr := f.records.Load(ctx)
		require.NoError(t, lerr)
		leftovers := map[cluster.Host]bool{}
		if rec != nil && rec.GroupID == group {
			for _, h := range rec.Hosts {
				leftovers[h] = true
			}
		}
		for i, h := range f.hosts {
			if members[i] {
				assert.True(t, leftovers[h], "%s left on %s without a record", group, h)
			}
		}
	}
}
