// Package wiki fetches OSM wiki pages and reduces them to plain text.
package wiki

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"
)

// minLineLen drops menu fragments and stray glyphs.
const minLineLen = 3

// DefaultSeedURLs lists the tag pages indexed out of the box.
var DefaultSeedURLs = []string{
	"https://wiki.openstreetmap.org/wiki/Tag:amenity%3Dcafe",
	"https://wiki.openstreetmap.org/wiki/Tag:amenity%3Drestaurant",
	"https://wiki.openstreetmap.org/wiki/Tag:amenity%3Dschool",
	"https://wiki.openstreetmap.org/wiki/Tag:amenity%3Dhospital",
	"https://wiki.openstreetmap.org/wiki/Tag:amenity%3Dparking",
	"https://wiki.openstreetmap.org/wiki/Tag:highway%3Dbus_stop",
	"https://wiki.openstreetmap.org/wiki/Tag:highway%3Dtraffic_signals",
	"https://wiki.openstreetmap.org/wiki/Tag:building%3Dresidential",
	"https://wiki.openstreetmap.org/wiki/Tag:building%3Dschool",
	"https://wiki.openstreetmap.org/wiki/Tag:shop%3Dsupermarket",
	"https://wiki.openstreetmap.org/wiki/Tag:shop%3Dconvenience",
	"https://wiki.openstreetmap.org/wiki/Tag:shop%3Dbakery",
	"https://wiki.openstreetmap.org/wiki/Tag:aeroway%3Daerodrome",
	"https://wiki.openstreetmap.org/wiki/Tag:aeroway%3Dterminal",
	"https://wiki.openstreetmap.org/wiki/Tag:railway%3Dstation",
	"https://wiki.openstreetmap.org/wiki/Tag:railway%3Dhalt",
	"https://wiki.openstreetmap.org/wiki/Tag:amenity%3Dpolice",
	"https://wiki.openstreetmap.org/wiki/Tag:amenity%3Dlibrary",
	"https://wiki.openstreetmap.org/wiki/Tag:amenity%3Dcinema",
	"https://wiki.openstreetmap.org/wiki/Tag:leisure%3Dpark",
	"https://wiki.openstreetmap.org/wiki/Tag:leisure%3Dswimming_pool",
}

// Page is one scraped wiki page. It is the line format of the raw JSONL file.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Config holds scraper settings.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Delay     time.Duration // pause between page fetches
	Logger    *zap.Logger
}

// Scraper downloads pages politely, one at a time.
type Scraper struct {
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New creates a Scraper.
func New(cfg Config) *Scraper {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Scraper{
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Scrape fetches every URL and returns the pages that succeeded. A failed
// page is logged and skipped; only context cancellation aborts the run.
func (s *Scraper) Scrape(ctx context.Context, urls []string) ([]Page, error) {
	pages := make([]Page, 0, len(urls))
	for i, u := range urls {
		if err := s.limiter.Wait(ctx); err != nil {
			return pages, err
		}
		p, err := s.Fetch(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			s.logger.Warn("Failed to fetch wiki page",
				zap.Int("n", i+1), zap.Int("total", len(urls)), zap.String("url", u), zap.Error(err))
			continue
		}
		s.logger.Info("Fetched wiki page",
			zap.Int("n", i+1), zap.Int("total", len(urls)), zap.String("url", u), zap.Int("chars", len(p.Text)))
		pages = append(pages, p)
	}
	return pages, nil
}

// Fetch downloads a single page and extracts its main content.
func (s *Scraper) Fetch(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Page{}, fmt.Errorf("get %s: %s", url, resp.Status)
	}
	return Parse(url, resp.Body)
}

// Parse extracts the title and the text of the main content block.
func Parse(url string, r io.Reader) (Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	title := url
	if n := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); n != nil {
		if t := strings.TrimSpace(textOf(n)); t != "" {
			title = t
		}
	}

	main := find(doc, byID("content"))
	if main == nil {
		main = find(doc, byID("bodyContent"))
	}
	if main == nil {
		main = find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	}
	if main == nil {
		main = doc
	}

	var lines []string
	for _, ln := range strings.Split(textOf(main), "\n") {
		ln = strings.TrimSpace(ln)
		if len([]rune(ln)) >= minLineLen {
			lines = append(lines, ln)
		}
	}
	return Page{URL: url, Title: title, Text: strings.Join(lines, "\n")}, nil
}

// WriteJSONL writes pages to path, one JSON object per line.
func WriteJSONL(path string, pages []Page) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, p := range pages {
		if err := enc.Encode(p); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadJSONL reads pages written by WriteJSONL.
func ReadJSONL(path string) ([]Page, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	var pages []Page
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var p Page
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		pages = append(pages, p)
	}
	return pages, sc.Err()
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return true
			}
		}
		return false
	}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := find(c, match); m != nil {
			return m
		}
	}
	return nil
}

// textOf concatenates text nodes, putting block-level elements on their own
// lines. Scripts and styles are skipped.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		block := isBlock(n)
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	walk(n)
	return b.String()
}

func isBlock(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Td, atom.Th, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Br, atom.Dd, atom.Dt, atom.Pre:
		return true
	}
	return false
}
