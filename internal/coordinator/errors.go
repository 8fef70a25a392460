package coordinator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dreamware/groupsync/internal/cluster"
)

var (
	// ErrResumePending is returned by ApplyCreate and ApplyDelete when a
	// stored rollback could not be resolved. The requested operation was
	// not attempted on any host.
	ErrResumePending = errors.New("pending rollback unresolved")

	// ErrInvalidGroupID is returned by ApplyCreate and ApplyDelete for a
	// group id that a rollback record could not hold: empty, or containing
	// a line break. No host was contacted.
	ErrInvalidGroupID = errors.New("invalid group id")

	// ErrOperationFailed means a host failed the operation and every host
	// that had already applied it was rolled back. Nothing was persisted.
	ErrOperationFailed = errors.New("operation failed, rolled back")

	// ErrCompensationFailed means some hosts could not be rolled back.
	// They are recorded in the rollback store unless the store write itself
	// failed, in which case the error also wraps the store error.
	ErrCompensationFailed = errors.New("rollback incomplete")
)

// OperationError describes a failed multi-host operation or rollback with
// enough detail for an operator to act on it.
type OperationError struct {
	Err          error
	GroupID      string
	FailedHost   cluster.Host   // host where forward application stopped; empty on resume
	StillFailing []cluster.Host // hosts left without compensation
	Operation    cluster.Operation
}

func (e *OperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q", e.Operation, e.GroupID)
	if e.FailedHost != "" {
		fmt.Fprintf(&b, " failed on %s", e.FailedHost)
	}
	if len(e.StillFailing) > 0 {
		hosts := make([]string, len(e.StillFailing))
		for i, h := range e.StillFailing {
			hosts[i] = string(h)
		}
		fmt.Fprintf(&b, " (not rolled back: %s)", strings.Join(hosts, ", "))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *OperationError) Unwrap() error { return e.Err }
