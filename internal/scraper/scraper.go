package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fossawork-backend/internal/config"
	"fossawork-backend/internal/logger"
	"fossawork-backend/models"
)

// ProgressFunc receives scrape progress updates. Implementations must
// be cheap; the scraper calls it from the hot path.
type ProgressFunc func(phase string, percent int, message string)

// Progress phases, in order.
const (
	PhaseLoggingIn = "logging_in"
	PhaseListing   = "listing"
	PhaseDetails   = "details"
	PhaseSaving    = "saving"
	PhaseDone      = "done"
	PhaseFailed    = "failed"
)

const listPath = "/workorders"

// Scraper runs one full portal extraction: browser login, paginated
// list fetch, per-order detail fetch.
type Scraper struct {
	baseURL      string
	loginPath    string
	loginTimeout time.Duration
	fetchTimeout time.Duration
	requestDelay time.Duration
	maxListPages int
}

func New(cfg *config.Config) *Scraper {
	return &Scraper{
		baseURL:      cfg.PortalBaseURL,
		loginPath:    cfg.PortalLoginPath,
		loginTimeout: cfg.RenderTimeout,
		fetchTimeout: cfg.ScrapeTimeout,
		requestDelay: cfg.RequestDelay,
		maxListPages: cfg.MaxListPages,
	}
}

// ScrapeUser logs into the portal with the given credentials and
// extracts every visible work order with its dispensers.
func (s *Scraper) ScrapeUser(ctx context.Context, creds Credentials, report ProgressFunc) ([]models.ScrapedWorkOrder, error) {
	if report == nil {
		report = func(string, int, string) {}
	}

	report(PhaseLoggingIn, 5, "logging into portal")
	sess, err := Login(ctx, s.baseURL, s.loginPath, creds, s.loginTimeout)
	if err != nil {
		return nil, err
	}

	fetcher, err := NewFetcher(sess, s.fetchTimeout, s.requestDelay)
	if err != nil {
		return nil, err
	}

	orders, err := s.collectList(ctx, fetcher, report)
	if err != nil {
		return nil, err
	}

	if err := s.collectDetails(ctx, fetcher, orders, report); err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *Scraper) collectList(ctx context.Context, fetcher *Fetcher, report ProgressFunc) ([]models.ScrapedWorkOrder, error) {
	var orders []models.ScrapedWorkOrder

	page := listPath
	maxPages := s.maxListPages
	if maxPages <= 0 {
		maxPages = 20
	}

	for i := 0; i < maxPages && page != ""; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		percent := 15 + (35*i)/maxPages
		report(PhaseListing, percent, fmt.Sprintf("fetching work order list page %d", i+1))

		html, err := fetcher.Get(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("list page %d: %w", i+1, err)
		}
		pageOrders, next, err := ParseWorkOrderList(html)
		if err != nil {
			return nil, fmt.Errorf("parse list page %d: %w", i+1, err)
		}
		orders = append(orders, pageOrders...)
		page = next
	}

	report(PhaseListing, 50, fmt.Sprintf("found %d work orders", len(orders)))
	return orders, nil
}

func (s *Scraper) collectDetails(ctx context.Context, fetcher *Fetcher, orders []models.ScrapedWorkOrder, report ProgressFunc) error {
	for i := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if orders[i].DetailPath == "" {
			continue
		}

		percent := 50
		if len(orders) > 0 {
			percent = 50 + (40*(i+1))/len(orders)
		}
		report(PhaseDetails, percent, fmt.Sprintf("fetching details %d/%d", i+1, len(orders)))

		html, err := fetcher.Get(ctx, orders[i].DetailPath)
		if err != nil {
			// Session death is fatal; a single broken detail page is not.
			if errors.Is(err, ErrSessionExpired) {
				return err
			}
			logger.Warn("detail fetch failed, keeping list data",
				"external_id", orders[i].ExternalID, "error", err.Error())
			continue
		}

		dispensers, err := ParseDispensers(html)
		if err != nil {
			logger.Warn("dispenser parse failed",
				"external_id", orders[i].ExternalID, "error", err.Error())
			continue
		}
		orders[i].Dispensers = dispensers
	}
	return nil
}
