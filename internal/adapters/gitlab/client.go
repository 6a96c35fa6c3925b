// Package gitlab provides a resilient GitLab REST v4 client for ingestion
package gitlab

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/logger"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUA        = "devflow-ingest"
	defaultPerPage   = 100
	defaultMaxRetry  = 5
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryCap  = 30 * time.Second
	defaultRPS       = 10
	defaultBurst     = 10
	defaultRatio     = 0.5
	defaultMinReqs   = 10
	defaultCooldown  = 30 * time.Second
	defaultUserCache = 1024
	maxBody          = 32 << 20
	maxErrBody       = 2048
)

// HTTPDoer can execute an http request
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a GitLab v4 client with retry, circuit breaking, rate limiting and a user cache
type Client struct {
	http    HTTPDoer
	api     string
	opts    Options
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	users   *lru.Cache
	log     logger.Logger
}

// New creates a Client; BaseURL must be absolute
func New(o Options, doer HTTPDoer) (*Client, error) {
	o = o.withDefaults()
	u, err := url.Parse(o.BaseURL)
	if err != nil || !u.IsAbs() {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "gitlab: base url %q is not absolute", o.BaseURL)
	}
	users, err := lru.New(o.UserCacheSize)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "gitlab: user cache")
	}
	if doer == nil {
		doer = &http.Client{Timeout: o.Timeout}
	}

	c := &Client{
		http:    doer,
		api:     strings.TrimRight(u.String(), "/") + "/api/v4",
		opts:    o,
		limiter: rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		users:   users,
		log:     *logger.Named("gitlab"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gitlab",
		MaxRequests: 1,
		Interval:    o.BreakerCooldown,
		Timeout:     o.BreakerCooldown,
		ReadyToTrip: func(cn gobreaker.Counts) bool {
			if cn.Requests < o.BreakerMinRequests {
				return false
			}
			return float64(cn.TotalFailures)/float64(cn.Requests) >= o.BreakerRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("gitlab circuit state change")
		},
		// permanent 4xx answers mean the upstream is healthy
		IsSuccessful: func(err error) bool { return err == nil || !perr.Retryable(err) },
	})
	return c, nil
}

// retryAfter lets a 429 or 503 stretch the next backoff to what the server asked for
type retryAfter struct {
	backoff.BackOff
	next time.Duration
}

func (r *retryAfter) NextBackOff() time.Duration {
	d := r.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if r.next > d {
		d = r.next
	}
	r.next = 0
	return d
}

// get issues a GET with retries and decodes the JSON body into out (when non nil).
// It returns the response headers of the successful attempt
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) (http.Header, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.RetryBase
	exp.MaxInterval = c.opts.RetryCap
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0
	ra := &retryAfter{BackOff: exp}
	policy := backoff.WithContext(backoff.WithMaxRetries(ra, uint64(c.opts.MaxRetries)), ctx)

	var hdr http.Header
	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(perr.Wrapf(err, perr.ErrorCodeTimeout, "gitlab: rate limiter wait"))
		}
		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.once(ctx, path, q, out)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(perr.Wrapf(err, perr.ErrorCodeUnavailable, "gitlab: circuit open for %s", path))
			}
			var wait waitHint
			if errors.As(err, &wait) {
				ra.next = wait.after
			}
			if !perr.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		hdr = res.(http.Header)
		return nil
	}
	notify := func(err error, d time.Duration) {
		c.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Dur("retry_in", d).Msg("gitlab transient error retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return hdr, nil
}

// waitHint carries a server requested delay along with the coded error
type waitHint struct {
	error
	after time.Duration
}

func (w waitHint) Unwrap() error { return w.error }

// once performs a single attempt
func (c *Client) once(ctx context.Context, path string, q url.Values, out any) (http.Header, error) {
	u := c.api + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "gitlab: new request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "gitlab: GET %s", path)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Error().Err(cerr).Str("path", path).Msg("gitlab close body failed")
		}
	}()

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Str("next_page", resp.Header.Get("X-Next-Page")).
		Msg("gitlab http response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		e := perr.FromHTTPStatus(resp.StatusCode, "gitlab: GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
		if d := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); d > 0 {
			return nil, waitHint{error: e, after: d}
		}
		return nil, e
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(out); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "gitlab: decode %s", path)
		}
	}
	return resp.Header, nil
}

// parseRetryAfter accepts delta seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if s, err := strconv.Atoi(v); err == nil {
		if s <= 0 {
			return 0
		}
		return time.Duration(s) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// list collects every page of a list endpoint
func list[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	var out []T
	err := pages(ctx, c, path, q, func(items []T) error {
		out = append(out, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pages walks a list endpoint following X-Next-Page and hands each decoded page to fn.
// An error from fn stops the walk and is returned as is
func pages[T any](ctx context.Context, c *Client, path string, q url.Values, fn func([]T) error) error {
	params := url.Values{}
	for k, v := range q {
		params[k] = v
	}
	params.Set("per_page", strconv.Itoa(c.opts.PerPage))

	page := "1"
	for page != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		params.Set("page", page)
		var items []T
		h, err := c.get(ctx, path, params, &items)
		if err != nil {
			return err
		}
		if err := fn(items); err != nil {
			return err
		}
		page = strings.TrimSpace(h.Get("X-Next-Page"))
	}
	return nil
}

// BreakerState reports the circuit state, for logs and tests
func (c *Client) BreakerState() gobreaker.State { return c.breaker.State() }
