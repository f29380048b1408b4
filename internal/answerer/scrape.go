package answerer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/giantswarm/qa-environment/internal/schema"
)

// QueryPlaceholder is replaced by the URL-escaped question in
// ScrapeConfig.URLTemplate.
const QueryPlaceholder = "{query}"

const maxScrapeBodyBytes = 2 << 20

// ScrapeConfig configures the web-scrape backend.
type ScrapeConfig struct {
	// URLTemplate is the page to fetch, e.g. "https://search.example.com/?q={query}".
	URLTemplate string `yaml:"url_template"`
	// RequestsPerSecond bounds the fetch rate across all queries (default 2).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst is the limiter burst size (default 1).
	Burst int `yaml:"burst"`
	// MaxResults caps the number of returned passages (default 3).
	MaxResults int           `yaml:"max_results"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Scrape fetches a results page for each question and returns the passages
// sharing the most terms with it.
type Scrape struct {
	config  ScrapeConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewScrape creates a web-scrape backend.
func NewScrape(config ScrapeConfig) (*Scrape, error) {
	if !strings.Contains(config.URLTemplate, QueryPlaceholder) {
		return nil, fmt.Errorf("scrape URL template must contain %s", QueryPlaceholder)
	}
	if _, err := url.Parse(strings.ReplaceAll(config.URLTemplate, QueryPlaceholder, "x")); err != nil {
		return nil, fmt.Errorf("invalid scrape URL template: %w", err)
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 3
	}
	if config.UserAgent == "" {
		config.UserAgent = "qa-environment/1.0"
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Scrape{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}, nil
}

// Check verifies that the scrape host answers HTTP at all.
func (s *Scrape) Check(ctx context.Context) error {
	target, err := url.Parse(strings.ReplaceAll(s.config.URLTemplate, QueryPlaceholder, ""))
	if err != nil {
		return err
	}
	root := &url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/"}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, root.String(), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Unavailable(err)
	}
	resp.Body.Close()
	return nil
}

// Answer fetches the page for q and extracts ranked passages.
func (s *Scrape) Answer(ctx context.Context, q *schema.Query) (*schema.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pageURL := strings.ReplaceAll(s.config.URLTemplate, QueryPlaceholder, url.QueryEscape(q.Question))
	title, blocks, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	qterms := make(map[string]bool)
	for _, t := range queryTerms(q.Question, q.TokenizedQuestion) {
		qterms[t] = true
	}

	type ranked struct {
		text    string
		overlap float64
	}
	var candidates []ranked
	for _, block := range blocks {
		seen := make(map[string]bool)
		hits := 0
		for _, t := range terms(block) {
			if qterms[t] && !seen[t] {
				seen[t] = true
				hits++
			}
		}
		if hits > 0 {
			candidates = append(candidates, ranked{text: block, overlap: float64(hits) / float64(len(qterms))})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].overlap > candidates[j].overlap
	})

	resp := &schema.Response{
		Question:          q.Question,
		ProcessedQuestion: ProcessQuestion(q.Question),
		Observations: map[string]schema.Observation{
			"page": {
				Text:   title,
				Scores: map[string]float64{"blocks": float64(len(blocks))},
			},
		},
	}
	for i, c := range candidates {
		if i == s.config.MaxResults {
			break
		}
		obs := schema.Observation{Text: c.text, Scores: map[string]float64{"overlap": c.overlap}}
		if err := obs.SetExtension("url", pageURL); err != nil {
			return nil, err
		}
		resp.Answers = append(resp.Answers, obs)
	}
	return resp, nil
}

func (s *Scrape) fetch(ctx context.Context, pageURL string) (string, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build scrape request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, classifyTransport(fmt.Errorf("scrape request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("scrape returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxScrapeBodyBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse scraped page: %w", err)
	}
	title, blocks := extractBlocks(doc)
	return title, blocks, nil
}

var blockElements = map[string]bool{
	"p": true, "li": true, "td": true, "dd": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// extractBlocks returns the page title and the text of every block element,
// skipping script, style and noscript content.
func extractBlocks(doc *html.Node) (string, []string) {
	var title string
	var blocks []string

	var text func(*html.Node, *strings.Builder)
	text = func(n *html.Node, b *strings.Builder) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			text(c, b)
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "script" || n.Data == "style" || n.Data == "noscript":
				return
			case n.Data == "title" && title == "":
				var b strings.Builder
				text(n, &b)
				title = strings.Join(strings.Fields(b.String()), " ")
				return
			case blockElements[n.Data]:
				var b strings.Builder
				text(n, &b)
				if block := strings.Join(strings.Fields(b.String()), " "); block != "" {
					blocks = append(blocks, block)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, blocks
}
