// Package edgar fetches filings from the SEC EDGAR archive. The registry
// enforces a User-Agent policy and a request budget; the client carries
// both, plus a response cache so re-processing a filing does not re-hit
// the archive.
package edgar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/dealtrace/dealtrace/internal/core/domain"
	"github.com/dealtrace/dealtrace/internal/infrastructure/resilience"
)

var (
	ErrRateLimited = errors.New("rate limited by registry")
	ErrBlocked     = errors.New("blocked by registry, check User-Agent compliance")
)

var exhibitTypeRE = regexp.MustCompile(`EX-(\d+\.?\d*)`)

type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
	executor   *resilience.Executor
}

type Options struct {
	RatePerSecond      float64
	CacheTTL           time.Duration
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewClient(baseURL, userAgent string, options Options) *Client {
	perSecond := options.RatePerSecond
	if perSecond <= 0 {
		perSecond = 8
	}
	ttl := options.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
		cache:      cache.New(ttl, 2*ttl),
		executor:   options.ResilienceExecutor,
	}
}

// FetchFilingIndex downloads and parses the filing index page, returning
// the filing shell and its exhibit entries. Exhibit contents are not
// fetched here; the processing worker pulls them one by one.
func (c *Client) FetchFilingIndex(ctx context.Context, cik, accessionNumber string) (*domain.Filing, []domain.Exhibit, error) {
	indexURL := c.indexURL(cik, accessionNumber)
	body, err := c.fetch(ctx, indexURL)
	if err != nil {
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, nil, fmt.Errorf("parse filing index: %w", err)
	}

	now := time.Now().UTC()
	filing := &domain.Filing{
		ID:              uuid.NewString(),
		AccessionNumber: accessionNumber,
		CIK:             cik,
		FilingURL:       indexURL,
		Status:          domain.FilingPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	doc.Find(".infoHead").Each(func(_ int, head *goquery.Selection) {
		label := strings.TrimSpace(head.Text())
		value := strings.TrimSpace(head.Next().Text())
		switch label {
		case "Type":
			filing.FormType = domain.FormType(value)
		case "Filing Date":
			if t, err := time.Parse("2006-01-02", value); err == nil {
				filing.FilingDate = t
			}
		}
	})
	if name := strings.TrimSpace(doc.Find(".companyName").First().Text()); name != "" {
		// The company name block carries "NAME (Filer)" plus CIK noise.
		if idx := strings.Index(name, "("); idx > 0 {
			name = strings.TrimSpace(name[:idx])
		}
		filing.CompanyName = name
	}

	exhibits, primaryURL := c.parseExhibits(doc, filing.ID, now)
	if primaryURL != "" {
		// The primary document carries the filing body; the index URL is
		// only the table of contents.
		filing.FilingURL = primaryURL
	}
	return filing, exhibits, nil
}

func (c *Client) parseExhibits(doc *goquery.Document, filingID string, now time.Time) ([]domain.Exhibit, string) {
	var exhibits []domain.Exhibit
	var primaryURL string
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		desc := strings.TrimSpace(cells.Eq(1).Text())
		descUpper := strings.ToUpper(desc)
		link := cells.Eq(2).Find("a").First()
		if link.Length() == 0 {
			return
		}
		if !strings.Contains(descUpper, "EX-") && !strings.Contains(descUpper, "EXHIBIT") {
			if primaryURL == "" {
				if href, ok := link.Attr("href"); ok && strings.HasSuffix(strings.ToLower(href), ".htm") {
					if !strings.HasPrefix(href, "http") {
						href = c.baseURL + href
					}
					primaryURL = href
				}
			}
			return
		}

		filename := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if !strings.HasPrefix(href, "http") {
			href = c.baseURL + href
		}

		exhibitType := "UNKNOWN"
		if m := exhibitTypeRE.FindStringSubmatch(descUpper); m != nil {
			exhibitType = "EX-" + m[1]
		}

		exhibits = append(exhibits, domain.Exhibit{
			ID:          uuid.NewString(),
			FilingID:    filingID,
			ExhibitType: exhibitType,
			Description: desc,
			Filename:    filename,
			URL:         href,
			IsPDF:       strings.HasSuffix(strings.ToLower(filename), ".pdf"),
			IsMaterial:  isMaterialDescription(desc),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	})
	return exhibits, primaryURL
}

func isMaterialDescription(description string) bool {
	lower := strings.ToLower(description)
	for _, keyword := range domain.MaterialExhibitKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func (c *Client) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http") {
		url = c.baseURL + url
	}
	return c.fetch(ctx, url)
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if cached, ok := c.cache.Get(url); ok {
		return cached.([]byte), nil
	}

	var body []byte
	call := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		fetched, err := c.doRequest(ctx, url)
		if err != nil {
			return err
		}
		body = fetched
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "edgar.fetch", call, classifyFetchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	c.cache.SetDefault(url, body)
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	// Accept-Encoding is left to the transport: setting it by hand turns
	// off net/http's transparent gzip decompression and the archive would
	// hand us compressed bytes.

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, url)
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrBlocked, url)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) indexURL(cik, accessionNumber string) string {
	accFmt := strings.ReplaceAll(accessionNumber, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s-index.htm",
		c.baseURL, padCIK(cik), accFmt, accessionNumber)
}

func padCIK(cik string) string {
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

func classifyFetchError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, ErrBlocked) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
	}
	if errors.Is(err, ErrRateLimited) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
