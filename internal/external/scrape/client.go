package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/zion/internal/data"
	"github.com/wonny/zion/internal/resilience"
	"github.com/wonny/zion/pkg/config"
	"github.com/wonny/zion/pkg/httputil"
	"github.com/wonny/zion/pkg/logger"
)

// SourceName is the provider name used in breaker policies and kind source lists
const SourceName = "scraper"

// symbolPlaceholder is replaced by the escaped symbol in the base URL
const symbolPlaceholder = "{symbol}"

// Client reads quote fields from an HTML page (last-resort source)
// ⭐ SSOT: HTML 스크래핑은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	selectors  map[string]string // kind -> CSS selector
}

// NewClient creates a scraper. An empty base URL disables it.
func NewClient(httpClient *httputil.Client, cfg config.ScraperConfig, log *logger.Logger) *Client {
	selectors := map[string]string{}
	if cfg.PriceSelector != "" {
		selectors["price"] = cfg.PriceSelector
	}
	if cfg.EPSSelector != "" {
		selectors["eps"] = cfg.EPSSelector
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.Component(SourceName),
		baseURL:    cfg.BaseURL,
		selectors:  selectors,
	}
}

// Enabled reports whether a page URL is configured
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Fetchers maps each configured kind to its fetch function
func (c *Client) Fetchers() map[string]data.FetchFunc {
	out := make(map[string]data.FetchFunc, len(c.selectors))
	if !c.Enabled() {
		return out
	}
	for kind := range c.selectors {
		out[kind] = func(ctx context.Context, symbol string) (interface{}, error) {
			return c.Field(ctx, kind, symbol)
		}
	}
	return out
}

// Field fetches the quote page and reads the number under kind's selector
func (c *Client) Field(ctx context.Context, kind, symbol string) (float64, error) {
	selector, ok := c.selectors[kind]
	if !ok {
		return 0, resilience.Permanent(fmt.Errorf("scraper: no selector for %s", kind))
	}

	body, err := c.httpClient.GetBytes(ctx, c.pageURL(symbol))
	if err != nil {
		return 0, fmt.Errorf("scraper %s: %w", symbol, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, resilience.Permanent(fmt.Errorf("scraper %s: parse html: %w", symbol, err))
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return 0, resilience.Permanent(fmt.Errorf("scraper %s: selector %q matched nothing", symbol, selector))
	}

	// data-value 속성 우선, 없으면 텍스트
	text, ok := sel.Attr("data-value")
	if !ok {
		text = sel.Text()
	}

	v, err := ParseNumber(text)
	if err != nil {
		return 0, resilience.Permanent(fmt.Errorf("scraper %s %s: %w", symbol, kind, err))
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"kind":   kind,
		"value":  v,
	}).Debug("Scraped field")
	return v, nil
}

func (c *Client) pageURL(symbol string) string {
	escaped := url.PathEscape(symbol)
	if strings.Contains(c.baseURL, symbolPlaceholder) {
		return strings.ReplaceAll(c.baseURL, symbolPlaceholder, escaped)
	}
	return strings.TrimRight(c.baseURL, "/") + "/" + escaped
}

// ParseNumber reads a display number such as "$1,234.50", "(3.2)" or "12.5%"
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.NewReplacer(",", "", "$", "", "%", "", "+", "", " ", "").Replace(s)
	if s == "" || s == "-" {
		return 0, fmt.Errorf("empty number")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if negative {
		v = -v
	}
	return v, nil
}
