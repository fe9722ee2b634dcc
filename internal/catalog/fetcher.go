package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rezoningwatch/rezoningwatch/internal/cache"
	"github.com/rezoningwatch/rezoningwatch/internal/retry"
	"github.com/rezoningwatch/rezoningwatch/internal/upstream"
	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

const (
	DefaultBaseURL  = "https://shapeyourcity.ca/api/v2/projects"
	DefaultPageSize = 100
	DefaultCacheTTL = 4 * time.Hour
)

// Config configures a Fetcher. Zero values fall back to the defaults above.
type Config struct {
	BaseURL  string
	PageSize int
	CacheTTL time.Duration
	Retry    retry.Policy
}

// PageObserver is told about every page that was read.
type PageObserver interface {
	ObservePage(records int, fromCache bool)
}

// Fetcher walks the projects API page by page.
type Fetcher struct {
	cfg      Config
	client   *http.Client
	cache    *cache.Cache[json.RawMessage]
	observer PageObserver
	logger   *slog.Logger
}

// NewFetcher returns a Fetcher. pageCache and observer may be nil.
func NewFetcher(cfg Config, client *http.Client, pageCache *cache.Cache[json.RawMessage], observer PageObserver, logger *slog.Logger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = retry.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{cfg: cfg, client: client, cache: pageCache, observer: observer, logger: logger}
}

// FirstPageURL returns the URL the stream starts from.
func (f *Fetcher) FirstPageURL() (string, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("catalog: parse base url: %w", err)
	}
	q := u.Query()
	q.Set("per_page", strconv.Itoa(f.cfg.PageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchAll streams every record, page by page. The sequence is single-use in
// spirit: ranging over it again re-issues every request (or cache lookup).
// At most one non-nil error is yielded, after which the sequence ends.
func (f *Fetcher) FetchAll(ctx context.Context, tok types.Token, useCache bool) iter.Seq2[types.Record, error] {
	return func(yield func(types.Record, error) bool) {
		next, err := f.FirstPageURL()
		if err != nil {
			yield(types.Record{}, err)
			return
		}

		client := upstream.WithBearer(f.client, tok.Value)
		pageCache := f.cache
		if !useCache {
			pageCache = nil
		}

		pageCount := 0
		for next != "" {
			body, fromCache, err := f.fetchPage(ctx, client, pageCache, next)
			if err != nil {
				yield(types.Record{}, fmt.Errorf("catalog: fetch %s: %w", next, err))
				return
			}

			records, following, ok, err := parsePage(body)
			if err != nil {
				yield(types.Record{}, fmt.Errorf("catalog: parse page %s: %w", next, err))
				return
			}
			if !ok {
				f.logger.Warn("catalog: page has no data array, stopping", "url", next)
				return
			}

			pageCount++
			f.logger.Info("catalog: retrieved page", "page", pageCount, "items", len(records), "cached", fromCache)
			if f.observer != nil {
				f.observer.ObservePage(len(records), fromCache)
			}

			for _, r := range records {
				if !yield(r, nil) {
					return
				}
			}
			next = following
		}
	}
}

// fetchPage returns the raw body of one page, from the cache when possible.
func (f *Fetcher) fetchPage(ctx context.Context, client *http.Client, pageCache *cache.Cache[json.RawMessage], pageURL string) (json.RawMessage, bool, error) {
	fromCache := true
	body, err := cache.GetOrFetch(ctx, pageCache, pageURL, f.cfg.CacheTTL, func(ctx context.Context) (json.RawMessage, error) {
		fromCache = false
		return retry.Do(ctx, f.cfg.Retry, func(ctx context.Context) (json.RawMessage, error) {
			b, err := upstream.Get(ctx, client, pageURL)
			if err != nil {
				f.logger.Warn("catalog: page fetch failed", "url", pageURL, "err", err)
				return nil, err
			}
			if !json.Valid(b) {
				return nil, retry.Permanent(fmt.Errorf("response is not valid JSON"))
			}
			return b, nil
		})
	})
	return body, fromCache, err
}

// rawPage defers decoding of data so a malformed array can be told apart
// from a malformed document.
type rawPage struct {
	Data  json.RawMessage `json:"data"`
	Links struct {
		Next *string `json:"next"`
	} `json:"links"`
}

// parsePage decodes a page body. ok is false when the data member is absent,
// null or not an array of records.
func parsePage(body []byte) (records []types.Record, next string, ok bool, err error) {
	var p rawPage
	if err := json.Unmarshal(body, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, "", false, nil
		}
		return nil, "", false, err
	}
	if len(p.Data) == 0 || string(p.Data) == "null" {
		return nil, "", false, nil
	}
	if err := json.Unmarshal(p.Data, &records); err != nil {
		return nil, "", false, nil
	}
	if p.Links.Next != nil {
		next = *p.Links.Next
	}
	return records, next, true, nil
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[types.Record, error]) ([]types.Record, error) {
	var out []types.Record
	for r, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
