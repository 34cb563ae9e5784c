package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Credentials are the user's portal login.
type Credentials struct {
	Username string
	Password string
}

// Session is an authenticated portal session: the cookies exported from
// the headless browser after a successful login.
type Session struct {
	BaseURL string
	Cookies []*http.Cookie
}

// Login drives a headless browser through the portal login form and
// exports the session cookies. The browser is only used for login; the
// actual page fetching runs over plain HTTP with these cookies.
func Login(ctx context.Context, baseURL, loginPath string, creds Credentials, timeout time.Duration) (*Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("portal credentials not configured")
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	loginURL, err := url.JoinPath(baseURL, loginPath)
	if err != nil {
		return nil, fmt.Errorf("invalid portal URL: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(runCtx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(browserUserAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var cookies []*network.Cookie
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.WaitVisible(`input[name="username"], input[type="email"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="username"], input[type="email"]`, creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="password"], input[type="password"]`, creds.Password, chromedp.ByQuery),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		// The dashboard nav only renders for authenticated sessions.
		chromedp.WaitVisible(`nav, .dashboard, a[href*="logout"]`, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, classifyLoginError(browserCtx, err)
	}

	sess := &Session{BaseURL: baseURL}
	for _, c := range cookies {
		sess.Cookies = append(sess.Cookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	if len(sess.Cookies) == 0 {
		return nil, fmt.Errorf("login produced no session cookies")
	}
	return sess, nil
}

// classifyLoginError distinguishes bad credentials from infrastructure
// failures so the scheduler can avoid hammering the portal with a
// password that will never work.
func classifyLoginError(browserCtx context.Context, cause error) error {
	var pageText string
	checkCtx, cancel := context.WithTimeout(browserCtx, 3*time.Second)
	defer cancel()
	_ = chromedp.Run(checkCtx, chromedp.Text("body", &pageText, chromedp.ByQuery))

	lower := strings.ToLower(pageText)
	if strings.Contains(lower, "invalid") && (strings.Contains(lower, "password") || strings.Contains(lower, "credentials")) {
		return fmt.Errorf("%w: %v", ErrBadCredentials, cause)
	}
	return fmt.Errorf("portal login failed: %w", cause)
}
