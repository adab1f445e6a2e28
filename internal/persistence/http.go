package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/privcaster/privcaster/internal/convert"
	"github.com/privcaster/privcaster/internal/errs"
	"github.com/privcaster/privcaster/internal/model"
)

// HTTPClient implements Store against the backend's JSON API.
type HTTPClient struct {
	base    string
	hc      *http.Client
	log     *zap.Logger
	retries uint64
	backoff time.Duration
}

var _ Store = (*HTTPClient)(nil)

// Option tunes an HTTPClient.
type Option func(*HTTPClient)

// WithRetry sets how many times idempotent calls are retried and the first backoff step.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(c *HTTPClient) { c.retries, c.backoff = maxRetries, base }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.hc = hc }
}

// NewHTTPClient talks to the backend at baseURL, e.g. "http://localhost:4000".
func NewHTTPClient(baseURL string, log *zap.Logger, opts ...Option) *HTTPClient {
	if log == nil {
		log = zap.NewNop()
	}
	c := &HTTPClient{
		base:    strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 15 * time.Second},
		log:     log,
		retries: 3,
		backoff: 200 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SaveIdentity upserts the identity document for address.
func (c *HTTPClient) SaveIdentity(ctx context.Context, address string, id model.Identity) (model.Identity, error) {
	in := convert.IdentityDoc{Address: address, Identity: convert.ToIdentityBody(id)}
	var out convert.IdentityDoc
	if err := c.do(ctx, http.MethodPost, "/identity", in, &out, true); err != nil {
		return model.Identity{}, err
	}
	if out.Identity == nil {
		return id, nil
	}
	return convert.FromIdentityDoc(out), nil
}

// FetchIdentity returns errs.ErrNotFound when address has no identity.
func (c *HTTPClient) FetchIdentity(ctx context.Context, address string) (*model.Identity, error) {
	var out convert.IdentityDoc
	if err := c.do(ctx, http.MethodGet, "/identity/"+url.PathEscape(address), nil, &out, true); err != nil {
		return nil, err
	}
	id := convert.FromIdentityDoc(out)
	return &id, nil
}

// SavePost upserts p and returns the stored copy.
func (c *HTTPClient) SavePost(ctx context.Context, p model.Post) (model.Post, error) {
	var out convert.PostDoc
	if err := c.do(ctx, http.MethodPost, "/post", convert.ToPostDoc(p), &out, true); err != nil {
		return model.Post{}, err
	}
	if out.ID == "" {
		return p, nil
	}
	return convert.FromPostDoc(out), nil
}

// FetchPosts lists every stored post.
func (c *HTTPClient) FetchPosts(ctx context.Context) ([]model.Post, error) {
	var out []convert.PostDoc
	if err := c.do(ctx, http.MethodGet, "/posts", nil, &out, true); err != nil {
		return nil, err
	}
	return convert.FromPostDocs(out), nil
}

// DeletePost is not retried: a retry after a lost response would report 404.
func (c *HTTPClient) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/post/"+url.PathEscape(id), nil, nil, false)
}

// do sends one JSON request. Idempotent calls retry transport failures and 5xx.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%w: encode %s: %w", errs.ErrPersistence, path, err)
		}
	}

	maxRetries := c.retries
	if !idempotent {
		maxRetries = 0
	}
	b := retry.WithMaxRetries(maxRetries, retry.NewExponential(c.backoff))

	start := time.Now()
	attempts := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		err := c.once(ctx, method, path, payload, out)
		if err != nil && isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("attempts", attempts),
		zap.Duration("dur", time.Since(start)),
	}
	if err != nil {
		c.log.Warn("backend call failed", append(fields, zap.Error(err))...)
		return err
	}
	c.log.Debug("backend call", fields...)
	return nil
}

// transientError marks failures worth another attempt.
type transientError struct{ error }

func (e transientError) Unwrap() error { return e.error }

func isTransient(err error) bool {
	_, ok := err.(transientError)
	return ok
}

func (c *HTTPClient) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", errs.ErrPersistence, method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s %s: %w", errs.ErrPersistence, method, path, ctx.Err())
		}
		return transientError{fmt.Errorf("%w: %s %s: %w", errs.ErrPersistence, method, path, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", errs.ErrNotFound, method, path)
	case resp.StatusCode >= 500:
		return transientError{fmt.Errorf("%w: %s %s: %s", errs.ErrPersistence, method, path, readError(resp))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s: %s", errs.ErrPersistence, method, path, readError(resp))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", errs.ErrPersistence, path, err)
	}
	return nil
}

// readError renders a non-2xx response as "<status>: <error field>".
func readError(resp *http.Response) string {
	var doc convert.ErrorDoc
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(raw, &doc) == nil && doc.Error != "" {
		return resp.Status + ": " + doc.Error
	}
	return resp.Status
}
