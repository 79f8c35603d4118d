package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"duyurubot/internal/storage"
	"duyurubot/pkg/logx"
)

// ajaxPath is the listing AJAX endpoint, resolved against the source's public
// page URL.
const ajaxPath = "/home/_TestData?langId=1"

// defaultUserAgents is the built-in identity pool. Rotated per request.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:124.0) Gecko/20100101 Firefox/124.0",
}

// Row is one parsed listing entry.
type Row struct {
	Link        string
	Title       string
	PublishedAt time.Time
}

type Config struct {
	RequestTimeout time.Duration // per page request; default 15s
	MinDelay       time.Duration // randomized pre-request pause lower bound
	MaxDelay       time.Duration // and upper bound
	UserAgents     []string      // overrides the built-in pool when non-empty
}

// Fetcher walks paginated listings. One Fetcher is shared by all sources so its
// limiter really is the process-wide throttle; tests construct their own.
type Fetcher struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger

	// uaIdx rotates through the identity pool.
	uaIdx atomic.Uint64
}

func New(cfg Config, log logx.Logger) *Fetcher {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay + 300*time.Millisecond
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaultUserAgents
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
		// Single token: at most one in-flight request across all sources,
		// replenished at most twice per second.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		log:     log,
	}
}

// FetchAll re-walks the source's pagination from offset zero and returns every
// parseable row. Each call is self-contained; there is no cross-call state.
//
// The offset advances by the number of <tr> elements the prior page returned
// (valid or not), so a page-size change upstream cannot skip or repeat rows.
// An empty page terminates the walk.
func (f *Fetcher) FetchAll(ctx context.Context, src storage.Source) ([]Row, error) {
	pageURL, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("source %s: bad url: %w", src.ShortName, err)
	}
	ajaxRef, err := url.Parse(ajaxPath)
	if err != nil {
		return nil, err
	}
	ajaxURL := pageURL.ResolveReference(ajaxRef)
	// Hrefs in listings are inconsistently absolute/relative across sources;
	// normalize every link onto the source's slug-scoped base path.
	linkBase := pageURL.Scheme + "://" + pageURL.Host + "/" + strings.Trim(src.ShortName, "/") + "/"

	var out []Row
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, total, err := f.fetchPage(ctx, src, ajaxURL.String(), offset, linkBase)
		if err != nil {
			return nil, fmt.Errorf("source %s offset %d: %w", src.ShortName, offset, err)
		}
		if total == 0 {
			return out, nil
		}
		out = append(out, rows...)
		offset += total
	}
}

func (f *Fetcher) fetchPage(ctx context.Context, src storage.Source, ajaxURL string, offset int, linkBase string) ([]Row, int, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	if err := f.pause(ctx); err != nil {
		return nil, 0, err
	}

	form := url.Values{
		"sortOrder":    {"ascending"},
		"searchString": {""},
		"insId":        {strconv.FormatInt(src.ID, 10)},
		"type":         {"duyuru"},
		"firstItem":    {strconv.Itoa(offset)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ajaxURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", src.URL)
	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "text/html")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	rows, total, err := parseRows(resp.Body, linkBase, f.log.With(logx.String("source", src.ShortName)))
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// pause sleeps a randomized short delay, bailing out on cancellation.
func (f *Fetcher) pause(ctx context.Context) error {
	d := f.cfg.MinDelay
	if span := f.cfg.MaxDelay - f.cfg.MinDelay; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *Fetcher) nextUserAgent() string {
	n := f.uaIdx.Add(1)
	return f.cfg.UserAgents[int(n-1)%len(f.cfg.UserAgents)]
}
