// Package oeis implements the remote catalog client for the On-Line
// Encyclopedia of Integer Sequences search API.
//
// Design Philosophy:
// - Every outbound request first takes a token from the shared rate limiter;
//   the catalog's published courtesy limit is low and global
// - Retries are an explicit state machine (Attempting/Backoff/Exhausted/
//   Succeeded) with an injectable sleep so timing is deterministically
//   testable
// - Malformed catalog records are skipped with a logged warning, never fatal:
//   one bad record must not poison a whole result page
//
// Error taxonomy (see pkg/models): HTTP 429 is absorbed by the retry loop;
// other 4xx surface ErrInvalidQuery without retry; transport failures and
// 5xx surface ErrNetworkUnavailable after retries are exhausted.
package oeis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"encore.dev/rlog"

	"encore.app/pkg/models"
	"encore.app/pkg/ratelimit"
	"encore.app/pkg/utils"
)

// DefaultBaseURL is the public OEIS endpoint.
const DefaultBaseURL = "https://oeis.org"

// Config holds client tuning knobs.
type Config struct {
	BaseURL        string        // Catalog base URL
	RequestsPerSec float64       // Token-bucket refill rate (burst equals rate)
	RequestTimeout time.Duration // Per-request HTTP timeout
	MaxAttempts    int           // Total attempts per logical fetch
	BackoffBase    time.Duration // First retry delay; doubles per retry
}

// DefaultConfig returns the documented defaults: 3 req/s, 10s timeout,
// 3 attempts, 1s backoff base.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		RequestsPerSec: 3,
		RequestTimeout: 10 * time.Second,
		MaxAttempts:    3,
		BackoffBase:    1 * time.Second,
	}
}

// CatalogResponse is one page of catalog search results.
type CatalogResponse struct {
	Sequences []models.ReferenceSequence `json:"sequences"`
	Count     int                        `json:"count"` // Total server-side hits
}

// Client fetches reference sequences from the catalog.
type Client struct {
	config  Config
	http    *http.Client
	limiter *ratelimit.Bucket
	sleep   func(context.Context, time.Duration) error
}

// NewClient creates a catalog client with its own rate limiter.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = DefaultConfig().RequestsPerSec
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = DefaultConfig().BackoffBase
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.RequestTimeout},
		limiter: ratelimit.New(config.RequestsPerSec),
		sleep:   sleepCtx,
	}
}

// SetSleep injects the retry sleep function. Test use only.
func (c *Client) SetSleep(sleep func(context.Context, time.Duration) error) {
	c.sleep = sleep
}

// Limiter exposes the client's token bucket so tests can swap its clock.
func (c *Client) Limiter() *ratelimit.Bucket {
	return c.limiter
}

// FetchByTerms searches the catalog for sequences containing the given terms
// in order. limit caps the number of parsed records.
func (c *Client) FetchByTerms(ctx context.Context, terms []int64, limit int) (*CatalogResponse, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no terms to search", models.ErrInvalidQuery)
	}
	return c.search(ctx, utils.TermsSignature(terms), limit)
}

// FetchByID retrieves a single sequence by its catalog identifier
// (e.g. "A000045"). Returns (nil, nil) when the catalog has no such entry.
func (c *Client) FetchByID(ctx context.Context, id string) (*models.ReferenceSequence, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty sequence id", models.ErrInvalidQuery)
	}

	resp, err := c.search(ctx, "id:"+id, 1)
	if err != nil {
		return nil, err
	}
	if len(resp.Sequences) == 0 {
		return nil, nil
	}
	seq := resp.Sequences[0]
	return &seq, nil
}

// FetchByKeyword searches the catalog by free-text keyword.
func (c *Client) FetchByKeyword(ctx context.Context, keyword string, limit int) (*CatalogResponse, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, fmt.Errorf("%w: empty keyword", models.ErrInvalidQuery)
	}
	return c.search(ctx, keyword, limit)
}

// search performs one rate-limited, retried catalog query.
func (c *Client) search(ctx context.Context, query string, limit int) (*CatalogResponse, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&fmt=json", c.config.BaseURL, url.QueryEscape(query))

	body, err := c.doWithRetry(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return parseResponse(body, limit)
}

// doWithRetry runs the retry state machine around a single GET.
func (c *Client) doWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	machine := newRetryMachine(c.config.MaxAttempts, c.config.BackoffBase, c.sleep)

	var lastErr error
	for machine.state == stateAttempting {
		body, outcome, err := c.attempt(ctx, endpoint)
		switch outcome {
		case outcomeSuccess:
			machine.succeed()
			return body, nil
		case outcomePermanent:
			machine.exhaust()
			return nil, err
		case outcomeRateLimited, outcomeTransient:
			lastErr = err
			delay := machine.nextDelay(outcome == outcomeRateLimited, retryAfterHint(err))
			if delay < 0 {
				break // exhausted
			}
			if sleepErr := machine.backoff(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	return nil, fmt.Errorf("%w: %v", models.ErrNetworkUnavailable, lastErr)
}

// attempt executes one HTTP round trip and classifies the result.
func (c *Client) attempt(ctx context.Context, endpoint string) ([]byte, attemptOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, outcomePermanent, fmt.Errorf("%w: %v", models.ErrInvalidQuery, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, outcomeTransient, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, outcomeTransient, readErr
		}
		return body, outcomeSuccess, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		hint := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, outcomeRateLimited, &rateLimitedError{retryAfter: hint}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, outcomePermanent, fmt.Errorf("%w: catalog rejected query (HTTP %d)", models.ErrInvalidQuery, resp.StatusCode)

	default:
		return nil, outcomeTransient, fmt.Errorf("catalog returned HTTP %d", resp.StatusCode)
	}
}

// rateLimitedError carries the server's retry-after hint through the
// classification layer. It wraps models.ErrRateLimited, which never escapes
// the retry loop.
type rateLimitedError struct {
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

func (e *rateLimitedError) Unwrap() error { return models.ErrRateLimited }

func retryAfterHint(err error) time.Duration {
	if rl, ok := err.(*rateLimitedError); ok {
		return rl.retryAfter
	}
	return 0
}

// parseRetryAfter reads a Retry-After header (seconds form). Zero means no
// usable hint.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// catalogRecord mirrors the subset of the OEIS JSON result schema the engine
// consumes.
type catalogRecord struct {
	Number  int      `json:"number"`
	Name    string   `json:"name"`
	Data    string   `json:"data"`
	Offset  string   `json:"offset"`
	Keyword string   `json:"keyword"`
	Formula []string `json:"formula"`
	Comment []string `json:"comment"`
}

type searchResult struct {
	Count   int             `json:"count"`
	Results []catalogRecord `json:"results"`
}

// parseResponse decodes a search payload, skipping malformed records.
func parseResponse(body []byte, limit int) (*CatalogResponse, error) {
	var result searchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: unparseable catalog response: %v", models.ErrNetworkUnavailable, err)
	}

	out := &CatalogResponse{Count: result.Count}
	for _, rec := range result.Results {
		if limit > 0 && len(out.Sequences) >= limit {
			break
		}
		seq, err := rec.toSequence()
		if err != nil {
			rlog.Warn("skipping malformed catalog record", "number", rec.Number, "err", err)
			continue
		}
		out.Sequences = append(out.Sequences, seq)
	}
	return out, nil
}

// toSequence converts one raw record. Terms past the first int64 overflow are
// truncated; a record with no parseable terms at all is malformed.
func (r catalogRecord) toSequence() (models.ReferenceSequence, error) {
	if r.Number <= 0 {
		return models.ReferenceSequence{}, fmt.Errorf("missing sequence number")
	}

	terms, err := parseTerms(r.Data)
	if err != nil {
		return models.ReferenceSequence{}, err
	}

	return models.ReferenceSequence{
		ID:          fmt.Sprintf("A%06d", r.Number),
		Name:        r.Name,
		Terms:       terms,
		Description: firstNonEmpty(r.Formula, r.Comment),
		Keywords:    splitKeywords(r.Keyword),
		Offset:      parseOffset(r.Offset),
	}, nil
}

func parseTerms(data string) ([]int64, error) {
	if strings.TrimSpace(data) == "" {
		return nil, fmt.Errorf("empty data field")
	}

	parts := strings.Split(data, ",")
	terms := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			// Truncate at the first term that does not fit int64.
			break
		}
		terms = append(terms, n)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("no parseable terms in %q", data)
	}
	return terms, nil
}

// parseOffset reads the leading integer of the catalog's "offset" field,
// which has the form "0,4".
func parseOffset(offset string) int {
	head, _, _ := strings.Cut(offset, ",")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return n
}

func splitKeywords(keyword string) []string {
	if keyword == "" {
		return nil
	}
	parts := strings.Split(keyword, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func firstNonEmpty(lists ...[]string) string {
	for _, list := range lists {
		if len(list) > 0 && strings.TrimSpace(list[0]) != "" {
			return list[0]
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
