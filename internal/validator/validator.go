package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/singleflight"

	"github.com/mkhomutov/feedkeeper/internal/entities"
	"github.com/mkhomutov/feedkeeper/internal/utils"
)

// Error codes recorded for failed validations. Unreachable and not-a-feed
// are distinct outcomes: the first never got a response, the second got one
// that no feed parser recognizes.
const (
	ErrCodeTimeout     = "timeout"
	ErrCodeUnreachable = "unreachable"
	ErrCodeBadStatus   = "bad_status"
	ErrCodeNotAFeed    = "not_a_feed"
)

// maxBodyBytes bounds how much of a response is read for feed detection.
const maxBodyBytes = 5 << 20

// Store is the validation cache the validator reads and writes.
type Store interface {
	Lookup(urlKey string) (*entities.FeedValidationCache, error)
	Save(entry *entities.FeedValidationCache) error
}

// Config holds the validator's network and cache parameters.
type Config struct {
	// Workers is the maximum number of in-flight fetches. Default: 5
	Workers int

	// FetchTimeout bounds a single fetch including redirects. Default: 15s
	FetchTimeout time.Duration

	// CacheTTL is how long a validation outcome is reused. Default: 1h
	CacheTTL time.Duration

	// MaxRedirects bounds redirect hops per fetch. Default: 5
	MaxRedirects int

	// UserAgent sent with every fetch.
	UserAgent string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      5,
		FetchTimeout: 15 * time.Second,
		CacheTTL:     time.Hour,
		MaxRedirects: 5,
		UserAgent:    "FeedKeeper/1.0 (+https://github.com/mkhomutov/feedkeeper)",
	}
}

// Result is the classification of one input URL. A failure is a negative
// result, never an error: ValidateBatch always returns one Result per input.
type Result struct {
	URL          string `json:"url"`
	FinalURL     string `json:"final_url,omitempty"`
	Valid        bool   `json:"valid"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	FeedFormat   string `json:"feed_format,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	FromCache    bool   `json:"from_cache"`
}

// Validator classifies feed URLs as valid or invalid, fetching concurrently
// with a bounded worker pool and caching every outcome. It knows nothing
// about jobs or duplicates.
type Validator struct {
	store  Store
	client *http.Client
	cfg    Config
	group  singleflight.Group
}

func New(store Store, cfg Config) *Validator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultConfig().MaxRedirects
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	client := &http.Client{
		Timeout: cfg.FetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}

	return &Validator{store: store, client: client, cfg: cfg}
}

// ValidateBatch classifies every URL in the input. The output is
// order-preserving with exactly one Result per input URL; repeated URLs are
// fetched once and share the outcome. URLs with a live cache entry skip the
// network entirely.
func (v *Validator) ValidateBatch(ctx context.Context, urls []string) []Result {
	byKey := make(map[string]*Result)
	var pending []string // distinct keys needing a fetch, in first-seen order
	rawByKey := make(map[string]string)

	for _, raw := range urls {
		key := utils.NormalizeFeedURL(raw)
		if _, seen := byKey[key]; seen {
			continue
		}
		byKey[key] = nil
		rawByKey[key] = raw

		entry, err := v.store.Lookup(key)
		if err == nil && entry != nil {
			byKey[key] = resultFromCache(entry)
			continue
		}
		pending = append(pending, key)
	}

	// Bounded worker pool over the cache misses.
	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan string)

	workers := v.cfg.Workers
	if workers > len(pending) {
		workers = len(pending)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				res := v.validateOne(ctx, key, rawByKey[key])
				mu.Lock()
				byKey[key] = res
				mu.Unlock()
			}
		}()
	}
	for _, key := range pending {
		jobs <- key
	}
	close(jobs)
	wg.Wait()

	results := make([]Result, 0, len(urls))
	for _, raw := range urls {
		res := byKey[utils.NormalizeFeedURL(raw)]
		out := *res
		out.URL = raw
		results = append(results, out)
	}
	return results
}

// validateOne fetches and classifies a single URL, collapsing concurrent
// requests for the same key (across jobs) into one fetch, and writes the
// outcome back to the cache with a TTL.
func (v *Validator) validateOne(ctx context.Context, key, rawURL string) *Result {
	val, _, _ := v.group.Do(key, func() (interface{}, error) {
		// Another job may have populated the cache while we queued.
		if entry, err := v.store.Lookup(key); err == nil && entry != nil {
			return resultFromCache(entry), nil
		}

		res := v.fetch(ctx, rawURL)

		now := time.Now()
		entry := &entities.FeedValidationCache{
			URLKey:       key,
			Valid:        res.Valid,
			FinalURL:     res.FinalURL,
			Title:        res.Title,
			Description:  res.Description,
			FeedFormat:   res.FeedFormat,
			ErrorCode:    res.ErrorCode,
			ErrorMessage: res.ErrorMessage,
			ValidatedAt:  now,
			ExpiresAt:    now.Add(v.cfg.CacheTTL),
		}
		// Cache write failures are non-fatal.
		_ = v.store.Save(entry)
		return res, nil
	})
	return val.(*Result)
}

// fetch performs the network round trip and feed-format check.
func (v *Validator) fetch(ctx context.Context, rawURL string) *Result {
	res := &Result{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.ErrorCode = ErrCodeUnreachable
		res.ErrorMessage = fmt.Sprintf("invalid URL: %v", err)
		return res
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml, */*")

	resp, err := v.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			res.ErrorCode = ErrCodeTimeout
			res.ErrorMessage = fmt.Sprintf("fetch timed out after %s", v.cfg.FetchTimeout)
		} else {
			res.ErrorCode = ErrCodeUnreachable
			res.ErrorMessage = err.Error()
		}
		return res
	}
	defer resp.Body.Close()

	res.FinalURL = resp.Request.URL.String()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.ErrorCode = ErrCodeBadStatus
		res.ErrorMessage = fmt.Sprintf("unexpected status: %d", resp.StatusCode)
		return res
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		res.ErrorCode = ErrCodeNotAFeed
		res.ErrorMessage = "response is not a recognized feed format"
		return res
	}

	res.Valid = true
	res.Title = feed.Title
	res.Description = feed.Description
	res.FeedFormat = strings.ToLower(feed.FeedType)
	return res
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

func resultFromCache(entry *entities.FeedValidationCache) *Result {
	return &Result{
		FinalURL:     entry.FinalURL,
		Valid:        entry.Valid,
		Title:        entry.Title,
		Description:  entry.Description,
		FeedFormat:   entry.FeedFormat,
		ErrorCode:    entry.ErrorCode,
		ErrorMessage: entry.ErrorMessage,
		FromCache:    true,
	}
}
