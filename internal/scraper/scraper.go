// Package scraper extracts product metadata (title, description, price,
// currency, image) from a shop's product page so users can add wishlist
// items by pasting a link.
//
// # Sources
//
// Every field is filled by the first source that has a non-empty value,
// in this order:
//
//  1. Open Graph meta tags, including product:price:amount/currency
//  2. schema.org Product JSON-LD (top level, arrays and @graph)
//  3. site-specific selectors for a few known retailers
//  4. generic fallbacks: <h1> or <title>, the first element whose class
//     or id mentions "price", the first <img>, the meta description
//
// # Thread Safety
//
// Scraper is safe for concurrent use. All requests share one rate limiter,
// so a burst of pasted links cannot turn the server into a crawler.
//
// # Network Access
//
// The default client only connects to public addresses. Loopback, private,
// link-local and unspecified targets fail with ErrBlockedAddress, including
// when a public page redirects to them.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds one page fetch including the body read.
	DefaultTimeout = 10 * time.Second
	// maxBodyBytes caps how much HTML is parsed.
	maxBodyBytes = 4 << 20
	userAgent    = "Mozilla/5.0 (compatible; GifteoBot/1.0; +https://gifteo.app)"
)

var (
	ErrNotHTML      = errors.New("scraper: response is not HTML")
	ErrNothingFound = errors.New("scraper: no product details found")
)

// Product is what could be extracted from a page. Any field may be empty.
type Product struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Price       decimal.NullDecimal `json:"price"`
	Currency    string              `json:"currency"`
	Image       string              `json:"image"`
}

// Scraper fetches and parses product pages.
type Scraper struct {
	client  *http.Client
	limiter *rate.Limiter
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient replaces the default client, and with it the guard against
// private addresses (tests point it at httptest).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

// WithRateLimit sets the process-wide request rate.
func WithRateLimit(every time.Duration, burst int) Option {
	return func(s *Scraper) { s.limiter = rate.NewLimiter(rate.Every(every), burst) }
}

// New returns a Scraper with the given per-request timeout. The default
// rate is one request per second with a burst of five.
func New(timeout time.Duration, opts ...Option) *Scraper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Scraper{
		client:  newGuardedClient(timeout),
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract fetches pageURL and returns what it could find. No retries.
func (s *Scraper) Extract(ctx context.Context, pageURL string) (*Product, error) {
	base, err := url.Parse(pageURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("scraper: invalid url %q", pageURL)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("scraper: waiting for rate limiter: %w", err)
	}

	doc, final, err := s.fetch(ctx, base)
	if err != nil {
		return nil, err
	}

	p := extract(doc, final)
	if p.Title == "" && !p.Price.Valid && p.Image == "" {
		return nil, ErrNothingFound
	}
	return p, nil
}

// fetch returns the parsed document and the URL it was finally served
// from, which is the base for relative links after redirects.
func (s *Scraper) fetch(ctx context.Context, u *url.URL) (*html.Node, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("scraper: building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("scraper: fetching %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("scraper: %s answered %d", u.Host, resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || (mediaType != "text/html" && mediaType != "application/xhtml+xml") {
		return nil, nil, ErrNotHTML
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("scraper: parsing html: %w", err)
	}
	return doc, resp.Request.URL, nil
}
