package rollback

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dreamware/groupsync/internal/cluster"
)

// ErrMalformedRecord is returned when stored bytes do not decode to a record.
var ErrMalformedRecord = errors.New("malformed rollback record")

// Record describes a compensation that did not finish: the operation to
// (re)apply, the group it targets, and the hosts still waiting for it, in
// the order they must be contacted.
type Record struct {
	Operation cluster.Operation
	GroupID   string
	Hosts     []cluster.Host
}

// CheckGroupID reports whether id survives a round trip through the record
// format. Any non-empty id without line breaks does; surrounding spaces are
// kept.
func CheckGroupID(id string) error {
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("%w: invalid group id %q", ErrMalformedRecord, id)
	}
	return nil
}

// CheckHost reports whether h survives a round trip through the record
// format. Host lines are trimmed on decode, so padded hosts are rejected.
func CheckHost(h cluster.Host) error {
	s := string(h)
	if s == "" || s != strings.TrimSpace(s) || strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("%w: invalid host %q", ErrMalformedRecord, h)
	}
	return nil
}

// Validate reports whether r can be stored and later resumed.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrMalformedRecord)
	}
	if _, ok := r.Operation.Inverse(); !ok {
		return fmt.Errorf("%w: operation %s cannot be compensated", ErrMalformedRecord, r.Operation)
	}
	if err := CheckGroupID(r.GroupID); err != nil {
		return err
	}
	if len(r.Hosts) == 0 {
		return fmt.Errorf("%w: no hosts", ErrMalformedRecord)
	}
	for _, h := range r.Hosts {
		if err := CheckHost(h); err != nil {
			return err
		}
	}
	return nil
}

// Encode renders r as text: the operation name, the group id, then one host
// per line.
//
//	delete
//	g1
//	10.0.0.1:8080
func Encode(r *Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(r.Operation.String())
	buf.WriteByte('\n')
	buf.WriteString(r.GroupID)
	buf.WriteByte('\n')
	for _, h := range r.Hosts {
		buf.WriteString(string(h))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Decode parses the text form produced by Encode. Line endings may be LF or
// CRLF. Surrounding whitespace is ignored on the operation and host lines,
// never on the group line, and blank host lines are skipped.
func Decode(data []byte) (*Record, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for sc.Scan() {
		// ScanLines already drops a trailing \r.
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("%w: expected operation and group lines", ErrMalformedRecord)
	}

	op, err := cluster.ParseOperation(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	rec := &Record{Operation: op, GroupID: lines[1]}
	for _, l := range lines[2:] {
		if l = strings.TrimSpace(l); l != "" {
			rec.Hosts = append(rec.Hosts, cluster.Host(l))
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
