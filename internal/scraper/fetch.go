package scraper

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

var (
	// ErrBadCredentials marks a login rejected by the portal. Retrying
	// will not help until the user updates their stored password.
	ErrBadCredentials = errors.New("portal rejected credentials")

	// ErrSessionExpired marks a fetch that was redirected back to the
	// login page mid-scrape.
	ErrSessionExpired = errors.New("portal session expired")

	httpTransport = &http.Transport{
		DisableCompression: false,
	}
)

// Fetcher retrieves portal pages over the authenticated session. All
// requests go through a circuit breaker and a shared rate limiter so a
// struggling portal is backed off instead of hammered.
type Fetcher struct {
	collector *colly.Collector
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
	baseURL   string
}

func NewFetcher(sess *Session, timeout, delay time.Duration) (*Fetcher, error) {
	parsed, err := url.Parse(sess.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid portal base URL: %w", err)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(httpTransport)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	} else {
		c.SetRequestTimeout(60 * time.Second)
	}
	c.UserAgent = browserUserAgent

	if err := c.SetCookies(sess.BaseURL, sess.Cookies); err != nil {
		return nil, fmt.Errorf("failed to seed session cookies: %w", err)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		r.Headers.Set("Referer", sess.BaseURL+"/")
	})

	if delay <= 0 {
		delay = 2 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "portal-fetch",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Fetcher{
		collector: c,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
		baseURL:   strings.TrimRight(sess.BaseURL, "/"),
	}, nil
}

// Get fetches one portal page and returns its decoded HTML.
func (f *Fetcher) Get(ctx context.Context, pagePath string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	target := pagePath
	if strings.HasPrefix(pagePath, "/") {
		target = f.baseURL + pagePath
	}

	html, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetchOnce(target)
	})
	if err != nil {
		return "", err
	}
	return html.(string), nil
}

func (f *Fetcher) fetchOnce(target string) (string, error) {
	var (
		body     []byte
		respErr  error
		finalURL string
	)

	col := f.collector.Clone()
	col.OnResponse(func(r *colly.Response) {
		finalURL = r.Request.URL.String()
		body = decodeBody(r)
	})
	col.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			respErr = fmt.Errorf("portal returned HTTP %d for %s", r.StatusCode, target)
			return
		}
		respErr = err
	})

	if err := col.Visit(target); err != nil {
		return "", fmt.Errorf("fetch %s: %w", target, err)
	}
	col.Wait()

	if respErr != nil {
		return "", respErr
	}
	if len(body) == 0 {
		return "", fmt.Errorf("empty response from %s", target)
	}
	// A redirect to the login page means the session died mid-scrape.
	if strings.Contains(finalURL, "/login") {
		return "", ErrSessionExpired
	}
	return string(body), nil
}

// decodeBody decompresses the response and converts legacy charsets to
// UTF-8. Setting Accept-Encoding by hand disables the transport's
// transparent gzip handling, so both gzip and brotli are decoded here.
func decodeBody(r *colly.Response) []byte {
	out := r.Body

	contentEncoding := r.Headers.Get("Content-Encoding")
	if strings.Contains(contentEncoding, "br") {
		brReader := brotli.NewReader(bytes.NewReader(out))
		if decompressed, err := io.ReadAll(brReader); err == nil {
			out = decompressed
		}
	} else if strings.Contains(contentEncoding, "gzip") {
		if gzReader, err := gzip.NewReader(bytes.NewReader(out)); err == nil {
			if decompressed, err := io.ReadAll(gzReader); err == nil {
				out = decompressed
			}
		}
	}

	if len(out) > 0 {
		contentType := r.Headers.Get("Content-Type")
		if utf8Reader, err := charset.NewReader(bytes.NewReader(out), contentType); err == nil {
			if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
				out = decoded
			}
		}
	}
	return out
}
