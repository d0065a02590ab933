package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	userAgent      = "clint"

	// secondary rate limit rejections without a Retry-After header wait
	// this long before the single retry
	defaultRetryAfter = 60 * time.Second
)

var (
	// ErrAuthentication marks a 401 or a 403 that is not a rate limit.
	ErrAuthentication = errors.New("authentication rejected")
	// ErrAmbiguousPublish marks a mutating request that timed out after
	// the request was sent, so the artifact may or may not exist.
	ErrAmbiguousPublish = errors.New("publish outcome ambiguous")
	// ErrRateLimited marks a rate-limit rejection that persisted after
	// the one permitted retry.
	ErrRateLimited = errors.New("rate limited")
)

type Client struct {
	base string
	http *http.Client

	mu        sync.Mutex
	remaining int
	reset     time.Time

	// sleep is stubbed in tests
	sleep func(time.Duration)
	now   func() time.Time
}

// NewClient builds a REST client. An empty token makes unauthenticated
// requests, which the platform rate-limits aggressively.
func NewClient(token, baseURL string) *Client {
	hc := http.DefaultClient
	if token != "" {
		hc = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		base:      strings.TrimRight(baseURL, "/"),
		http:      hc,
		remaining: -1,
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

// page carries one response's decoded body plus its pagination link.
type page struct {
	status     int
	body       []byte
	next       string
	retryAfter time.Duration
}

// do performs one request with rate-limit handling. A mutating verb that
// times out after the request was sent returns ErrAmbiguousPublish so the
// caller never re-sends it.
func (c *Client) do(ctx context.Context, method, url string, in any) (page, error) {
	c.waitForPrimaryLimit(ctx)

	p, err := c.send(ctx, method, url, in)
	if err != nil {
		return page{}, c.classifyTransportError(method, err)
	}
	if !isRateLimited(p) {
		return p, nil
	}

	// secondary limit: honor Retry-After once, then give up
	c.sleep(retryDelay(p))
	p, err = c.send(ctx, method, url, in)
	if err != nil {
		return page{}, c.classifyTransportError(method, err)
	}
	if isRateLimited(p) {
		return page{}, fmt.Errorf("%s %s rejected twice: %w", method, url, ErrRateLimited)
	}
	return p, nil
}

func (c *Client) send(ctx context.Context, method, url string, in any) (page, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return page{}, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return page{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return page{}, err
	}
	defer resp.Body.Close()

	c.recordLimits(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return page{}, fmt.Errorf("read response body: %w", err)
	}
	p := page{status: resp.StatusCode, body: raw, next: nextLink(resp.Header.Get("Link"))}
	if secs, err := strconv.Atoi(resp.Header.Get("retry-after")); err == nil && secs > 0 {
		p.retryAfter = time.Duration(secs) * time.Second
	}
	return p, nil
}

// waitForPrimaryLimit sleeps until the quota window resets when the last
// response reported an exhausted primary limit.
func (c *Client) waitForPrimaryLimit(ctx context.Context) {
	c.mu.Lock()
	remaining, reset := c.remaining, c.reset
	c.mu.Unlock()
	if remaining != 0 {
		return
	}
	wait := reset.Sub(c.now())
	if wait <= 0 {
		return
	}
	if deadline, ok := ctx.Deadline(); ok && c.now().Add(wait).After(deadline) {
		return
	}
	c.sleep(wait)
}

func (c *Client) recordLimits(resp *http.Response) {
	rem := resp.Header.Get("x-ratelimit-remaining")
	if rem == "" {
		return
	}
	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = remaining
	if epoch, err := strconv.ParseInt(resp.Header.Get("x-ratelimit-reset"), 10, 64); err == nil {
		c.reset = time.Unix(epoch, 0)
	}
}

func (c *Client) classifyTransportError(method string, err error) error {
	if method == http.MethodGet {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrAmbiguousPublish, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrAmbiguousPublish, err)
	}
	return err
}

// isRateLimited distinguishes a secondary-limit rejection from an ordinary
// 403. Any 429 counts; a 403 counts only when its body mentions rate or
// abuse limits.
func isRateLimited(p page) bool {
	if p.status != http.StatusForbidden && p.status != http.StatusTooManyRequests {
		return false
	}
	if p.status == http.StatusTooManyRequests {
		return true
	}
	return bytes.Contains(p.body, []byte("rate limit")) || bytes.Contains(p.body, []byte("abuse"))
}

func retryDelay(p page) time.Duration {
	if p.retryAfter > 0 && p.retryAfter < defaultRetryAfter {
		return p.retryAfter
	}
	return defaultRetryAfter
}

// apiError decodes the platform's error envelope for diagnostics.
type apiError struct {
	Message string `json:"message"`
}

// check maps an error status to a Go error. 401 and non-rate-limit 403 wrap
// ErrAuthentication so callers can distinguish a bad token from a transient
// failure.
func check(p page, method, url string) error {
	if p.status >= 200 && p.status < 300 {
		return nil
	}
	var body apiError
	_ = json.Unmarshal(p.body, &body)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(p.status)
	}
	if p.status == http.StatusUnauthorized || p.status == http.StatusForbidden {
		return fmt.Errorf("%s %s: %s: %w", method, url, msg, ErrAuthentication)
	}
	return fmt.Errorf("%s %s: %d %s", method, url, p.status, msg)
}

var linkNextRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

func nextLink(header string) string {
	m := linkNextRe.FindStringSubmatch(header)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}

// getJSON fetches one resource.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	p, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if err := check(p, http.MethodGet, url); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(p.body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// getPages walks Link-header pagination, handing each page's raw body to
// collect.
func (c *Client) getPages(ctx context.Context, url string, collect func([]byte) error) error {
	for url != "" {
		p, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if err := check(p, http.MethodGet, url); err != nil {
			return err
		}
		if err := collect(p.body); err != nil {
			return err
		}
		url = p.next
	}
	return nil
}

func (c *Client) mutate(ctx context.Context, method, url string, in, out any) error {
	p, err := c.do(ctx, method, url, in)
	if err != nil {
		return err
	}
	if err := check(p, method, url); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(p.body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
