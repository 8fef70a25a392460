package cluster

import (
	"fmt"
	"strings"
)

// Host is the address of one cluster member, e.g. "10.0.0.5:8080" or
// "http://10.0.0.5:8080". Hosts are opaque to everything but the transport.
type Host string

// Operation is the group operation applied to a host.
type Operation int

const (
	// Create adds the group to a host.
	Create Operation = iota + 1
	// Delete removes the group from a host.
	Delete
	// Status queries whether the group exists on a host.
	Status
)

// String returns the lower-case operation name used on disk and in logs.
func (o Operation) String() string {
	switch o {
	case Create:
		return "create"
	case Delete:
		return "delete"
	case Status:
		return "status"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Inverse returns the operation that undoes o. Status has no inverse.
func (o Operation) Inverse() (Operation, bool) {
	switch o {
	case Create:
		return Delete, true
	case Delete:
		return Create, true
	default:
		return 0, false
	}
}

// ParseOperation converts an operation name back into an Operation.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create":
		return Create, nil
	case "delete":
		return Delete, nil
	case "status":
		return Status, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", s)
	}
}

// Outcome is the interpreted result of one per-host call after retries.
type Outcome int

const (
	// Applied means the call succeeded or the host already was in the
	// requested end state. For Status it means the group exists.
	Applied Outcome = iota + 1
	// NotFound means the host reported the group absent. Status only.
	NotFound
	// Failed means every attempt failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// GroupRequest is the JSON body sent with create and delete calls.
type GroupRequest struct {
	GroupID string `json:"groupId"`
}
