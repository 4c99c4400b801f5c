/*
Package tdnet scrapes the TDnet disclosure listing and downloads disclosure
PDFs. The listing markup is third-party and not contractually stable, so the
row parser relies only on cell ordering and the presence of a PDF link.
*/
package tdnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/shanehull/tdnetwatch/internal/types"
)

const (
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	listFrameID     = "main_list"
	earningsKeyword = "決算"
)

var (
	// ErrUpstreamUnavailable indicates a non-success status from the
	// listing site. Fatal for the run; the listing cannot be trusted.
	ErrUpstreamUnavailable = errors.New("tdnet upstream unavailable")

	// ErrStructureChanged indicates the listing markup no longer contains
	// the expected frame element.
	ErrStructureChanged = errors.New("tdnet listing structure changed")
)

var codePattern = regexp.MustCompile(`^\d{4}$`)

var client = &http.Client{
	Timeout: 60 * time.Second,
}

// Scraper fetches and parses the TDnet disclosure listing.
type Scraper struct {
	indexURL string
	baseURL  string
	log      zerolog.Logger
}

// NewScraper returns a Scraper for the given index page and base URL.
func NewScraper(indexURL, baseURL string, log zerolog.Logger) *Scraper {
	return &Scraper{
		indexURL: indexURL,
		baseURL:  baseURL,
		log:      log,
	}
}

// ScrapeListing retrieves the index page, locates the list frame, fetches
// the list page and returns the earnings-report rows found on it. An empty
// result is a valid outcome; errors are fatal for the run.
func (s *Scraper) ScrapeListing(ctx context.Context) ([]types.DisclosureItem, error) {
	indexDoc, err := s.fetchDocument(ctx, s.indexURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index page: %w", err)
	}

	frameSrc := findFrameSrc(indexDoc, listFrameID)
	if frameSrc == "" {
		return nil, fmt.Errorf("%w: frame #%s not found on %s", ErrStructureChanged, listFrameID, s.indexURL)
	}

	listURL := frameSrc
	if !strings.HasPrefix(frameSrc, "http") {
		listURL = s.baseURL + frameSrc
	}
	s.log.Debug().Str("url", listURL).Msg("fetching disclosure list")

	listDoc, err := s.fetchDocument(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch list page: %w", err)
	}

	return ParseListing(listDoc, s.baseURL), nil
}

// FetchPDF downloads the disclosure document. Any failure returns nil; a
// missing document must not abort the run for the other items.
func (s *Scraper) FetchPDF(ctx context.Context, url string) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.log.Error().Err(err).Str("url", url).Msg("invalid PDF URL")
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := client.Do(req)
	if err != nil {
		s.log.Error().Err(err).Str("url", url).Msg("PDF fetch failed")
		return nil
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Str("url", url).Msg("failed to close PDF response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		s.log.Error().Int("status", resp.StatusCode).Str("url", url).Msg("PDF fetch returned non-OK status")
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.log.Error().Err(err).Str("url", url).Msg("failed to read PDF body")
		return nil
	}
	return data
}

func (s *Scraper) fetchDocument(ctx context.Context, url string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Str("url", url).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d from %s", ErrUpstreamUnavailable, resp.StatusCode, url)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", url, err)
	}
	return doc, nil
}

// findFrameSrc locates an iframe with the given id and returns its src
// attribute, or "" if no such frame exists.
func findFrameSrc(doc *html.Node, id string) string {
	var src string
	var f func(*html.Node)

	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "iframe" {
			var nodeID, nodeSrc string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "id":
					nodeID = attr.Val
				case "src":
					nodeSrc = strings.TrimSpace(attr.Val)
				}
			}
			if nodeID == id {
				src = nodeSrc
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if src != "" {
				return
			}
			f(c)
		}
	}

	f(doc)
	return src
}
