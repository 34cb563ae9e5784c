package scraper

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"fossawork-backend/models"
)

// The portal markup is not an API: field placement shifts between
// deployments, so extraction leans on loose selectors plus regexes over
// the row text. Parsers return what they can and never fail a whole
// page over one malformed row.

var (
	orderIDRe  = regexp.MustCompile(`(?i)(?:work\s*order|wo)[#\s:]*([0-9]{4,})`)
	storeNumRe = regexp.MustCompile(`#\s*(\d{3,6})`)
	serviceRe  = regexp.MustCompile(`(?m)^\s*(\d{4})\s*[-–]\s*(.+)$`)
	serialRe   = regexp.MustCompile(`(?i)s/n[:\s]*([A-Za-z0-9-]+)`)
	positionRe = regexp.MustCompile(`\b(\d{1,2}/\d{1,2})\b`)
)

var visitDateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"2006-01-02",
}

// ParseWorkOrderList extracts work-order rows from one list page and
// reports the path of the next page, if any.
func ParseWorkOrderList(html string) ([]models.ScrapedWorkOrder, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", err
	}

	var orders []models.ScrapedWorkOrder
	doc.Find("div.work-order, tr.work-order").Each(func(_ int, row *goquery.Selection) {
		o, ok := parseOrderRow(row)
		if ok {
			orders = append(orders, o)
		}
	})

	next := ""
	if href, ok := doc.Find(`a[rel="next"], a.next-page`).First().Attr("href"); ok {
		next = strings.TrimSpace(href)
	}
	return orders, next, nil
}

func parseOrderRow(row *goquery.Selection) (models.ScrapedWorkOrder, bool) {
	var o models.ScrapedWorkOrder

	if id, ok := row.Attr("data-order-id"); ok {
		o.ExternalID = strings.TrimSpace(id)
	}
	text := normalizeSpace(row.Text())
	if o.ExternalID == "" {
		if m := orderIDRe.FindStringSubmatch(text); m != nil {
			o.ExternalID = m[1]
		}
	}
	if o.ExternalID == "" {
		return o, false
	}

	if href, ok := row.Find("a[href]").First().Attr("href"); ok {
		o.DetailPath = strings.TrimSpace(href)
	}

	o.CustomerName = normalizeSpace(row.Find(".customer-name, .customer").First().Text())
	o.Address = normalizeSpace(row.Find(".address, .site-address").First().Text())
	o.Status = normalizeSpace(row.Find(".status, .wo-status").First().Text())

	// Store number is embedded in the customer line ("Circle K #4521")
	if m := storeNumRe.FindStringSubmatch(o.CustomerName); m != nil {
		o.StoreNumber = m[1]
	} else if m := storeNumRe.FindStringSubmatch(text); m != nil {
		o.StoreNumber = m[1]
	}

	service := normalizeSpace(row.Find(".service, .service-type").First().Text())
	if service == "" {
		service = text
	}
	if m := serviceRe.FindStringSubmatch(service); m != nil {
		o.ServiceCode = m[1]
		o.ServiceDesc = normalizeSpace(m[2])
	} else if service != text {
		o.ServiceDesc = service
	}

	if raw := normalizeSpace(row.Find(".visit-date, .scheduled").First().Text()); raw != "" {
		if t := parseVisitDate(raw); t != nil {
			o.VisitDate = t
		}
	}
	return o, true
}

// ParseDispensers extracts dispenser records from a work-order detail
// page. Dispenser blocks look like "Dispenser 1/2 - Gilbarco Encore 700
// S/N AB123456".
func ParseDispensers(html string) ([]models.ScrapedDispenser, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []models.ScrapedDispenser
	doc.Find("div.dispenser, li.dispenser, .equipment-item").Each(func(_ int, sel *goquery.Selection) {
		title := normalizeSpace(sel.Find(".title, .equipment-title").First().Text())
		if title == "" {
			title = normalizeSpace(sel.Text())
		}
		if title == "" {
			return
		}

		d := models.ScrapedDispenser{Title: title}
		if m := serialRe.FindStringSubmatch(title); m != nil {
			d.Serial = m[1]
		}
		if m := positionRe.FindStringSubmatch(title); m != nil {
			d.Position = m[1]
		}
		d.MakeModel = dispenserMakeModel(title)
		out = append(out, d)
	})
	return out, nil
}

// dispenserMakeModel strips the position prefix and serial suffix,
// leaving the make/model text in the middle.
func dispenserMakeModel(title string) string {
	s := serialRe.ReplaceAllString(title, "")
	s = regexp.MustCompile(`(?i)^dispenser\s*`).ReplaceAllString(s, "")
	s = positionRe.ReplaceAllString(s, "")
	s = strings.Trim(normalizeSpace(s), "-– ")
	return s
}

func parseVisitDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range visitDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
