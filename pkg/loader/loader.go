package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/velding/newsrag/internal/models"
	"golang.org/x/time/rate"
)

// Some news sites reject default Go user agents outright.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// minContentLength filters out pages that returned a block/captcha stub
// instead of the article body.
const minContentLength = 100

// FetchError reports a single URL that could not be loaded. The batch
// continues past it.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type LoaderConfig struct {
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	UserAgent  string
	OnProgress func(url string)
}

type Loader struct {
	config  LoaderConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config LoaderConfig) *Loader {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}

	return &Loader{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Loader {
	return NewWithConfig(LoaderConfig{})
}

// Load fetches each URL in order. Failed URLs are skipped; their
// FetchErrors are returned alongside the documents that succeeded so the
// caller can report them. Document order follows URL order.
func (l *Loader) Load(ctx context.Context, urls []string) ([]models.Document, []error) {
	var documents []models.Document
	var failures []error

	for _, u := range urls {
		doc, err := l.loadOne(ctx, u)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		documents = append(documents, doc)
		if l.config.OnProgress != nil {
			l.config.OnProgress(u)
		}
	}

	return documents, failures
}

func (l *Loader) loadOne(ctx context.Context, urlStr string) (models.Document, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return models.Document{}, &FetchError{URL: urlStr, Err: fmt.Errorf("invalid URL")}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return models.Document{}, &FetchError{URL: urlStr, Err: fmt.Errorf("unsupported scheme %q", parsed.Scheme)}
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return models.Document{}, &FetchError{URL: urlStr, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return models.Document{}, &FetchError{URL: urlStr, Err: err}
	}
	req.Header.Set("User-Agent", l.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return models.Document{}, &FetchError{URL: urlStr, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, &FetchError{URL: urlStr, Err: fmt.Errorf("received status code %d", resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextual(contentType) {
		return models.Document{}, &FetchError{URL: urlStr, Err: fmt.Errorf("non-text content type %q", contentType)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.Document{}, &FetchError{URL: urlStr, Err: err}
	}

	content := l.extractMainContent(doc)
	if len(content) < minContentLength {
		return models.Document{}, &FetchError{URL: urlStr, Err: fmt.Errorf("page content too short, site may be blocking automated access")}
	}

	return models.Document{
		URL:     urlStr,
		Title:   strings.TrimSpace(doc.Find("title").Text()),
		Content: content,
	}, nil
}

func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	for _, prefix := range []string{"text/html", "text/plain", "application/xhtml+xml", "application/xml"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

func (l *Loader) extractMainContent(doc *goquery.Document) string {
	// Try to find the article body first
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".article-body",
		"#article-body",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return l.cleanContent(content)
}

func (l *Loader) cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
		"Subscribe to our newsletter",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}
