package harvester

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"quill/internal/config"
	"quill/internal/logging"
)

const (
	defaultMaxItems  = 10
	defaultUserAgent = "quill-harvester/1.0"
	maxResponseBytes = 4 << 20
)

// Item is one harvested piece of source content.
type Item struct {
	Title          string
	Body           string
	SequenceNumber int
	OriginLocator  string
	NextLocator    string
}

// Harvester fetches and extracts content pages.
type Harvester struct {
	cfg        config.Harvester
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New constructs a Harvester from configuration. A zero request rate disables
// throttling.
func New(cfg config.Harvester, logger *slog.Logger) *Harvester {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Harvester{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		logger:     logging.WithComponent(logger, "harvester"),
	}
}

// SetHTTPClient overrides the HTTP client; tests use this to pin transports.
func (h *Harvester) SetHTTPClient(client *http.Client) {
	if client != nil {
		h.httpClient = client
	}
}

// Harvest walks the chapter chain starting at startLocator. It returns the
// items collected in order. The walk ends when a page has no next link, when
// the item ceiling is reached, or when a locator repeats (defends against
// next-link cycles). A fetch or extraction failure mid-walk returns the error
// along with the items collected before it.
func (h *Harvester) Harvest(ctx context.Context, startLocator string) ([]Item, error) {
	locator := strings.TrimSpace(startLocator)
	if locator == "" {
		return nil, fmt.Errorf("harvest: start locator required")
	}

	var items []Item
	visited := map[string]bool{}
	for len(items) < h.cfg.MaxItems {
		if visited[locator] {
			h.logger.Warn("next link cycle detected, stopping", logging.String("locator", locator))
			break
		}
		visited[locator] = true

		item, err := h.fetchOne(ctx, locator, len(items)+1)
		if err != nil {
			return items, err
		}
		items = append(items, *item)
		h.logger.Info("harvested item",
			logging.String("locator", locator),
			logging.String("title", item.Title),
			logging.Int("sequence", item.SequenceNumber))

		if item.NextLocator == "" {
			break
		}
		locator = item.NextLocator
	}
	return items, nil
}

func (h *Harvester) fetchOne(ctx context.Context, locator string, sequence int) (*Item, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("harvest rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("harvest %q: new request: %w", locator, err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("harvest %q: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("harvest %q: http %d", locator, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("harvest %q: read body: %w", locator, err)
	}

	page := string(raw)
	body := ExtractBody(page)
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("harvest %q: no extractable content", locator)
	}

	next := ExtractNextLink(page)
	if next != "" {
		next = resolveLocator(locator, next)
	}

	title := ExtractTitle(page)
	if title == "" {
		title = deriveTitleFromLocator(locator)
	}

	return &Item{
		Title:          title,
		Body:           body,
		SequenceNumber: sequence,
		OriginLocator:  locator,
		NextLocator:    next,
	}, nil
}

// resolveLocator resolves a possibly relative next link against the page it
// came from. Unparseable links are dropped rather than followed.
func resolveLocator(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(refURL)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
