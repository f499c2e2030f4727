package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-logr/logr"
	"golang.org/x/time/rate"

	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/internal/models"
)

// DocumentType tags every crawled page.
const DocumentType = "web"

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	MaxPages          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
	log      logr.Logger
}

func NewWithConfig(config ScraperConfig, log logr.Logger) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.MaxPages == 0 {
		config.MaxPages = 200
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		log:      log.WithName("scraper"),
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != s.baseHost {
		return false
	}

	// Check extensions
	path := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" && !strings.Contains(lastSegment(path), ".") {
			validExt = true
			break
		}
		if allowedExt != "" && strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

// cleanContent collapses whitespace inside a block and drops boilerplate.
func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.TrimSpace(content)
}

// extractMainContent keeps one paragraph per block element so the chunker
// can cut on paragraph breaks.
func extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, noscript").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	root := doc.Find("body")
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}

	var blocks []string
	root.Find("h1, h2, h3, h4, p, li, pre, td").Each(func(_ int, sel *goquery.Selection) {
		if text := cleanContent(sel.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return cleanContent(root.Text())
	}
	return strings.Join(blocks, "\n\n")
}

// crawl holds the state of one Scrape call.
type crawl struct {
	visited   map[string]bool
	documents []models.Document
}

// Scrape crawls startURL breadth first up to MaxDepth and MaxPages. Pages
// that fail to load are logged and skipped; only a failure of the start
// page is returned.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.Document, error) {
	c := &crawl{visited: make(map[string]bool)}

	type item struct {
		url   string
		depth int
	}
	queue := []item{{url: normalize(startURL), depth: 0}}

	for len(queue) > 0 && len(c.documents) < s.config.MaxPages {
		next := queue[0]
		queue = queue[1:]

		if next.depth > s.config.MaxDepth || c.visited[next.url] || !s.shouldProcessURL(next.url) {
			continue
		}
		c.visited[next.url] = true

		links, err := s.scrapePage(ctx, next.url, next.depth, c)
		if err != nil {
			if ctx.Err() != nil || next.depth == 0 {
				return c.documents, err
			}
			s.log.Error(err, "skipping page", "url", next.url)
			continue
		}
		for _, link := range links {
			queue = append(queue, item{url: link, depth: next.depth + 1})
		}
	}

	s.log.Info("crawl finished", "start", startURL, "pages", len(c.documents))
	return c.documents, nil
}

func (s *Scraper) scrapePage(ctx context.Context, urlStr string, depth int, c *crawl) ([]string, error) {
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	links := collectLinks(doc, urlStr)
	content := extractMainContent(doc)

	if content != "" {
		c.documents = append(c.documents, models.Document{
			Name:         urlStr,
			DocumentType: DocumentType,
			Content:      content,
			Metadata: map[string]interface{}{
				"title":        title,
				"depth":        depth,
				"time":         time.Now(),
				"contentType":  resp.Header.Get("Content-Type"),
				"lastModified": resp.Header.Get("Last-Modified"),
			},
		})
	}
	s.log.V(1).Info("scraped page", "url", urlStr, "depth", depth, "links", len(links))

	return links, nil
}

func collectLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, normalize(base.ResolveReference(ref).String()))
	})
	return links
}

// normalize drops the fragment and gives the root an explicit "/" so
// that every page has one spelling.
func normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
