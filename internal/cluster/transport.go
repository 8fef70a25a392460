package cluster

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// GroupPath is the per-host endpoint serving group membership.
const GroupPath = "/v1/group/"

// HealthPath is the per-host liveness endpoint.
const HealthPath = "/health"

// Reply classifies a single HTTP attempt. The classification happens here,
// once, so callers never look at status codes.
type Reply int

const (
	// ReplyOK is any 2xx response.
	ReplyOK Reply = iota + 1
	// ReplyConflict is 400 or 409: the host says the group already exists.
	ReplyConflict
	// ReplyNotFound is 404.
	ReplyNotFound
	// ReplyUnavailable covers network errors, timeouts and every other status.
	ReplyUnavailable
)

func (r Reply) String() string {
	switch r {
	case ReplyOK:
		return "ok"
	case ReplyConflict:
		return "conflict"
	case ReplyNotFound:
		return "not_found"
	case ReplyUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("reply(%d)", int(r))
	}
}

// Client performs one group call against one host. It never retries;
// retry policy belongs to the executor.
type Client struct {
	rc *resty.Client
}

// NewClient returns a Client whose every attempt is bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	return &Client{rc: rc}
}

// Call issues op for groupID against host and classifies the response.
// The returned error describes why a ReplyUnavailable happened and is nil
// for every other Reply.
func (c *Client) Call(ctx context.Context, op Operation, host Host, groupID string) (Reply, error) {
	base := BaseURL(host)
	req := c.rc.R().SetContext(ctx)

	var (
		resp *resty.Response
		err  error
	)
	switch op {
	case Create:
		resp, err = req.SetBody(GroupRequest{GroupID: groupID}).Post(base)
	case Delete:
		resp, err = req.SetBody(GroupRequest{GroupID: groupID}).Delete(base)
	case Status:
		resp, err = req.Get(base + url.PathEscape(groupID))
	default:
		return ReplyUnavailable, fmt.Errorf("unsupported operation %s", op)
	}
	if err != nil {
		return ReplyUnavailable, fmt.Errorf("%s %s: %w", op, host, err)
	}
	return classify(resp.StatusCode(), op, host)
}

func classify(code int, op Operation, host Host) (Reply, error) {
	switch {
	case code >= 200 && code < 300:
		return ReplyOK, nil
	case code == http.StatusBadRequest || code == http.StatusConflict:
		return ReplyConflict, nil
	case code == http.StatusNotFound:
		return ReplyNotFound, nil
	default:
		return ReplyUnavailable, fmt.Errorf("%s %s: http %d", op, host, code)
	}
}

// Health probes the host's /health endpoint. Any status other than 200 is
// an error.
func (c *Client) Health(ctx context.Context, host Host) error {
	resp, err := c.rc.R().SetContext(ctx).Get(hostURL(host) + HealthPath)
	if err != nil {
		return fmt.Errorf("health %s: %w", host, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("health %s: http %d", host, resp.StatusCode())
	}
	return nil
}

// BaseURL returns the group endpoint for host. Hosts without a scheme are
// reached over plain http.
func BaseURL(host Host) string {
	return hostURL(host) + GroupPath
}

func hostURL(host Host) string {
	addr := string(host)
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/")
}
