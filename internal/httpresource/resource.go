// Package httpresource implements [pollster.Resource] over HTTP.
//
// A [Resource] is bound to one URL. Each poller action maps to an HTTP
// method, and the poller's params become query-string values (or a JSON
// body for "save"). JSON responses are decoded into generic Go values.
package httpresource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jpalmerr/pollster"
)

const defaultTimeout = 10 * time.Second

// ErrUnknownAction is returned by Fetch for an action with no HTTP mapping.
var ErrUnknownAction = errors.New("unknown action")

// actionMethods maps poller actions to HTTP methods.
var actionMethods = map[string]string{
	"query":  http.MethodGet,
	"get":    http.MethodGet,
	"save":   http.MethodPost,
	"remove": http.MethodDelete,
	"delete": http.MethodDelete,
	"head":   http.MethodHead,
}

// KnownAction reports whether action has an HTTP mapping.
func KnownAction(action string) bool {
	_, ok := actionMethods[action]
	return ok
}

// StatusError is returned by Fetch for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Resource is an HTTP endpoint that can be polled.
//
// Resource is immutable after [New] and safe for concurrent use.
type Resource struct {
	name    string
	url     string
	headers map[string]string
	timeout time.Duration
	client  *Client
	extract []string
}

// Option configures a [Resource].
type Option func(*Resource) error

// WithHeaders adds HTTP headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(r *Resource) error {
		for k, v := range headers {
			r.headers[k] = v
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(r *Resource) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		r.timeout = d
		return nil
	}
}

// WithClient shares a [Client] between resources. By default every
// resource gets its own client.
func WithClient(c *Client) Option {
	return func(r *Resource) error {
		if c == nil {
			return errors.New("client cannot be nil")
		}
		r.client = c
		return nil
	}
}

// New creates a [Resource] named name for rawURL.
//
// The name is the resource's identity in a [pollster.Registry]: two
// resources with the same name share one poller.
func New(name, rawURL string, opts ...Option) (*Resource, error) {
	if name == "" {
		return nil, errors.New("resource name cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("URL must have a scheme (http:// or https://)")
	}

	r := &Resource{
		name:    name,
		url:     rawURL,
		headers: make(map[string]string),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.client == nil {
		r.client = NewClient()
	}
	return r, nil
}

// ResourceID returns the resource name. It implements [pollster.Identifier].
func (r *Resource) ResourceID() string {
	return r.name
}

// Name returns the resource name.
func (r *Resource) Name() string {
	return r.name
}

// URL returns the target URL.
func (r *Resource) URL() string {
	return r.url
}

// Client returns the client the resource sends requests through.
func (r *Resource) Client() *Client {
	return r.client
}

// Fetch performs action against the URL.
//
// "query" and "get" issue GET, "head" issues HEAD, "remove" and "delete"
// issue DELETE, all with params encoded in the query string. "save" issues
// POST with params as a JSON body.
//
// A 2xx JSON body is decoded into map[string]any, []any or a scalar; any
// other 2xx body is returned as a string, and an empty body as nil. Non-2xx
// responses return a *StatusError. With [WithExtract], only the selected
// part of the decoded body is returned.
func (r *Resource) Fetch(ctx context.Context, action string, params pollster.Params) (any, error) {
	method, ok := actionMethods[action]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownAction, action)
	}

	target := r.url
	var body []byte
	if method == http.MethodPost {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params: %w", err)
		}
		body = encoded
	} else if len(params) > 0 {
		withQuery, err := appendQuery(r.url, params)
		if err != nil {
			return nil, err
		}
		target = withQuery
	}

	resp, err := r.client.do(ctx, method, target, r.headers, body, r.timeout)
	if err != nil {
		return nil, err
	}

	if resp.statusCode < 200 || resp.statusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.statusCode,
			Body:       truncate(strings.TrimSpace(string(resp.body)), 256),
		}
	}

	value, err := decodeBody(resp)
	if err != nil || len(r.extract) == 0 || value == nil {
		return value, err
	}
	return extractPath(value, r.extract)
}

// appendQuery merges params into the query string of rawURL.
// Keys are encoded in sorted order for stable URLs.
func appendQuery(rawURL string, params pollster.Params) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := u.Query()
	for _, k := range keys {
		switch v := params[k].(type) {
		case []string:
			for _, item := range v {
				q.Add(k, item)
			}
		case []any:
			for _, item := range v {
				q.Add(k, fmt.Sprint(item))
			}
		default:
			q.Set(k, fmt.Sprint(v))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeBody(resp response) (any, error) {
	if len(resp.body) == 0 {
		return nil, nil
	}

	contentType := resp.header.Get("Content-Type")
	if strings.Contains(contentType, "json") || json.Valid(resp.body) {
		var v any
		if err := json.Unmarshal(resp.body, &v); err != nil {
			return nil, fmt.Errorf("failed to decode JSON response: %w", err)
		}
		return v, nil
	}
	return string(resp.body), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
