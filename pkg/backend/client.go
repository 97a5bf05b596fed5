package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdziat/swipe-sync/pkg/core"
	"github.com/jdziat/swipe-sync/pkg/queue"
	"github.com/jdziat/swipe-sync/pkg/state"
)

// IdempotencyHeader carries the idempotency key of a mutating request.
const IdempotencyHeader = "Idempotency-Key"

// DefaultPageSize is the page size used by ListCollection and ListAllJobs.
const DefaultPageSize = 50

// maxPages bounds pagination when the server keeps reporting hasMore.
const maxPages = 1000

// maxErrorBody limits how much of an error response is read.
const maxErrorBody = 4 << 10

// Pagination is the paging metadata of a list response.
type Pagination struct {
	HasMore bool `json:"hasMore"`
	Total   int  `json:"total"`
}

type listResponse[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type actionRequest struct {
	JobID  string        `json:"jobId"`
	Reason string        `json:"reason,omitempty"`
	Action core.Decision `json:"action,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRateLimit limits outgoing requests to r per second with the given
// burst, so draining a long offline queue does not flood the backend.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the backend API.
type Client struct {
	base    *url.URL
	http    *http.Client
	token   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transports returns a transport for every action type.
func (c *Client) Transports() map[core.ActionType]queue.TransportFunc {
	return map[core.ActionType]queue.TransportFunc{
		core.ActionAccept:     c.Accept,
		core.ActionReject:     c.Reject,
		core.ActionSkip:       c.Skip,
		core.ActionUnskip:     c.Unskip,
		core.ActionToggleSave: c.ToggleSave,
		core.ActionReport:     c.Report,
		core.ActionUnreport:   c.Unreport,
		core.ActionRollback:   c.Rollback,
	}
}

// Accept applies to a job.
func (c *Client) Accept(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
	return c.mutate(ctx, http.MethodPost, "/api/applications", actionRequest{JobID: p.JobID}, o)
}

// Reject passes on a job.
func (c *Client) Reject(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
	return c.mutate(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(p.JobID)+"/reject", nil, o)
}

// Skip adds a job to the skipped collection.
func (c *Client) Skip(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
	return c.mutate(ctx, http.MethodPost, "/api/skipped", actionRequest{JobID: p.JobID}, o)
}

// Unskip removes a job from the skipped collection.
func (c *Client) Unskip(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/skipped/"+url.PathEscape(p.JobID), nil, o)
}

// ToggleSave saves or unsaves a job. It returns a nil record when the job
// ended up unsaved.
func (c *Client) ToggleSave(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
	return c.mutate(ctx, http.MethodPost, "/api/saved/toggle", actionRequest{JobID: p.JobID}, o)
}

// Report flags a job with a reason.
func (c *Client) Report(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
	return c.mutate(ctx, http.MethodPost, "/api/reported", actionRequest{JobID: p.JobID, Reason: p.Reason}, o)
}

// Unreport withdraws a report.
func (c *Client) Unreport(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
	return c.mutate(ctx, http.MethodDelete, "/api/reported/"+url.PathEscape(p.JobID), nil, o)
}

// Rollback undoes the server side of a swipe decision.
func (c *Client) Rollback(ctx context.Context, p core.Payload, o core.DeliveryOptions) (*core.Record, error) {
	return c.mutate(ctx, http.MethodPost, "/api/rollback", actionRequest{JobID: p.JobID, Action: p.Action}, o)
}

// mutate sends a mutating request and decodes an optional record.
func (c *Client) mutate(ctx context.Context, method, path string, body any, o core.DeliveryOptions) (*core.Record, error) {
	var rec core.Record
	found, err := c.do(ctx, method, path, nil, body, o.IdempotencyKey, &rec)
	if err != nil {
		return nil, err
	}
	if !found || rec.ID == "" {
		return nil, nil
	}
	return &rec, nil
}

// Ping checks that the backend is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, "", nil)
	return err
}

// ListJobs returns one page of the job deck.
func (c *Client) ListJobs(ctx context.Context, page, limit int) ([]core.Job, Pagination, error) {
	return list[core.Job](ctx, c, "jobs", page, limit)
}

// ListAllJobs returns every page of the job deck.
func (c *Client) ListAllJobs(ctx context.Context) ([]core.Job, error) {
	return listAll[core.Job](ctx, c, "jobs")
}

// ListRecords returns one page of a collection.
func (c *Client) ListRecords(ctx context.Context, col state.Collection, page, limit int) ([]core.Record, Pagination, error) {
	resource, err := resourceFor(col)
	if err != nil {
		return nil, Pagination{}, err
	}
	return list[core.Record](ctx, c, resource, page, limit)
}

// ListCollection returns every record of a collection.
func (c *Client) ListCollection(ctx context.Context, col state.Collection) ([]core.Record, error) {
	resource, err := resourceFor(col)
	if err != nil {
		return nil, err
	}
	return listAll[core.Record](ctx, c, resource)
}

func resourceFor(col state.Collection) (string, error) {
	switch col {
	case state.CollectionSaved:
		return "saved", nil
	case state.CollectionApplications:
		return "applications", nil
	case state.CollectionSkipped:
		return "skipped", nil
	case state.CollectionReported:
		return "reported", nil
	default:
		return "", fmt.Errorf("unknown collection %q", col)
	}
}

func list[T any](ctx context.Context, c *Client, resource string, page, limit int) ([]T, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var resp listResponse[T]
	if _, err := c.do(ctx, http.MethodGet, "/api/"+resource, query, nil, "", &resp); err != nil {
		return nil, Pagination{}, err
	}
	if resp.Items == nil {
		resp.Items = []T{}
	}
	return resp.Items, resp.Pagination, nil
}

func listAll[T any](ctx context.Context, c *Client, resource string) ([]T, error) {
	var all []T
	for page := 1; page <= maxPages; page++ {
		items, p, err := list[T](ctx, c, resource, page, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if !p.HasMore || len(items) == 0 {
			return all, nil
		}
	}
	c.logger.Warn("pagination limit reached", "resource", resource, "pages", maxPages)
	return all, nil
}

// do performs one request. It reports whether a response body was decoded
// into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, key string, out any) (bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, core.NoRetry(fmt.Errorf("backend: encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return false, core.NoRetry(fmt.Errorf("backend: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return false, classify(&StatusError{
			Method:  method,
			Path:    path,
			Code:    resp.StatusCode,
			Message: errorMessage(msg),
		}, resp.Header)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("backend: %s %s: read response: %w", method, path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, core.NoRetry(fmt.Errorf("backend: %s %s: decode response: %w", method, path, err))
	}
	return true, nil
}

// errorMessage extracts {"error": "..."} bodies, falling back to the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
