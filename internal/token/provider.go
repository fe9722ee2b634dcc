package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rezoningwatch/rezoningwatch/internal/cache"
	"github.com/rezoningwatch/rezoningwatch/internal/retry"
	"github.com/rezoningwatch/rezoningwatch/internal/upstream"
	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

// ErrAuthAcquisition means a token could not be obtained within the retry
// budget.
var ErrAuthAcquisition = errors.New("token: could not acquire token")

const (
	DefaultPageURL  = "https://shapeyourcity.ca/embeds/projectfinder"
	DefaultSkew     = time.Minute
	DefaultCacheTTL = time.Minute

	// MinSkew is the smallest freshness margin accepted by NewProvider.
	MinSkew = time.Minute
)

// Store is the slice of the snapshot store the provider needs.
type Store interface {
	GetToken() (types.Token, bool, error)
	SetToken(types.Token) error
}

// Config configures a Provider. Zero values fall back to the defaults above.
type Config struct {
	PageURL  string
	Path     []string
	Skew     time.Duration
	CacheTTL time.Duration
	Retry    retry.Policy
}

// Provider hands out a fresh API token, scraping a new one when needed.
type Provider struct {
	cfg    Config
	store  Store
	client *http.Client
	cache  *cache.Cache[types.Token]
	logger *slog.Logger
	now    func() time.Time // injectable for deterministic tests
}

// NewProvider returns a Provider. tokenCache may be nil, in which case the
// useCache argument of Token has no effect.
func NewProvider(cfg Config, store Store, client *http.Client, tokenCache *cache.Cache[types.Token], logger *slog.Logger) *Provider {
	if cfg.PageURL == "" {
		cfg.PageURL = DefaultPageURL
	}
	if len(cfg.Path) == 0 {
		cfg.Path = DefaultPath
	}
	if cfg.Skew < MinSkew {
		cfg.Skew = MinSkew
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
	return &Provider{
		cfg:    cfg,
		store:  store,
		client: client,
		cache:  tokenCache,
		logger: logger,
		now:    time.Now,
	}
}

// Token returns a token that stays valid for at least the configured skew.
func (p *Provider) Token(ctx context.Context, useCache bool) (types.Token, error) {
	now := p.now()

	stored, found, err := p.store.GetToken()
	if err != nil {
		return types.Token{}, fmt.Errorf("token: load cached token: %w", err)
	}
	if found && stored.FreshAt(now, p.cfg.Skew) {
		p.logger.Info("token: loaded API token from store", "expires", stored.Expiration)
		return stored, nil
	}

	if useCache && p.cache != nil {
		if tok, ok := p.cache.TryGet(p.cfg.PageURL); ok && tok.FreshAt(now, p.cfg.Skew) {
			p.logger.Info("token: using cached token page result", "expires", tok.Expiration)
			if err := p.store.SetToken(tok); err != nil {
				return types.Token{}, fmt.Errorf("token: persist token: %w", err)
			}
			return tok, nil
		}
	}

	tok, err := p.scrape(ctx)
	if err != nil {
		return types.Token{}, err
	}
	if !tok.FreshAt(now, p.cfg.Skew) {
		return types.Token{}, fmt.Errorf("%w: upstream issued a token expiring at %s", ErrTokenFormat, tok.Expiration)
	}

	if err := p.store.SetToken(tok); err != nil {
		return types.Token{}, fmt.Errorf("token: persist token: %w", err)
	}
	p.logger.Info("token: cached new token in store", "expires", tok.Expiration)

	if useCache && p.cache != nil {
		p.cache.Put(p.cfg.PageURL, tok, p.cfg.CacheTTL)
	}
	return tok, nil
}

// scrape downloads the token page under the retry policy and decodes it.
// Only the download is retried; format problems surface immediately.
func (p *Provider) scrape(ctx context.Context) (types.Token, error) {
	p.logger.Info("token: fetching anonymous user token", "url", p.cfg.PageURL)

	markup, err := retry.Do(ctx, p.cfg.Retry, func(ctx context.Context) ([]byte, error) {
		body, err := upstream.Get(ctx, p.client, p.cfg.PageURL)
		if err != nil {
			p.logger.Warn("token: page fetch failed", "url", p.cfg.PageURL, "err", err)
		}
		return body, err
	})
	if err != nil {
		return types.Token{}, fmt.Errorf("%w: %w", ErrAuthAcquisition, err)
	}

	raw, err := ExtractFromHTML(markup, p.cfg.Path)
	if err != nil {
		return types.Token{}, err
	}
	exp, err := ExpirationFromJWT(raw)
	if err != nil {
		return types.Token{}, err
	}
	p.logger.Info("token: retrieved JWT", "expires", exp)
	return types.Token{Value: raw, Expiration: exp}, nil
}
