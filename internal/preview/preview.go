package preview

import (
	"context"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"offline-chat/internal/message"
)

const (
	fetchTimeout  = 5 * time.Second
	maxBodyBytes  = 512 << 10
	maxScanDepth  = 64
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURLs scans message text for http(s) links in order of
// appearance.
func ExtractURLs(content string) []string {
	return urlPattern.FindAllString(content, -1)
}

// Enricher fetches lightweight page metadata for link previews.
// Generation is best-effort: every failure degrades to a fallback
// preview so sending is never blocked.
type Enricher struct {
	client *http.Client
}

// NewEnricher builds an Enricher with a bounded-timeout HTTP client.
func NewEnricher(client *http.Client) *Enricher {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &Enricher{client: client}
}

// Generate fetches previews for every URL concurrently, preserving the
// order the URLs appear in. It always returns one preview per URL.
func (e *Enricher) Generate(ctx context.Context, urls []string) []message.LinkPreview {
	if len(urls) == 0 {
		return nil
	}
	previews := make([]message.LinkPreview, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			previews[i] = e.GeneratePreview(ctx, url)
		}(i, url)
	}
	wg.Wait()
	return previews
}

// GeneratePreview fetches one URL and extracts metadata in priority
// order: og:title then <title>; og:description then meta description
// then empty; og:image or absent. Any failure yields the fallback
// {url, title: url, description: ""}.
func (e *Enricher) GeneratePreview(ctx context.Context, url string) message.LinkPreview {
	fallback := message.LinkPreview{URL: url, Title: url, Description: ""}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fallback
	}
	resp, err := e.client.Do(req)
	if err != nil {
		log.Printf("link preview fetch %s: %v", url, err)
		return fallback
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("link preview fetch %s: status %d", url, resp.StatusCode)
		return fallback
	}

	meta, err := parseMetadata(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Printf("link preview parse %s: %v", url, err)
		return fallback
	}

	out := message.LinkPreview{URL: url, Title: url, Description: ""}
	if meta.ogTitle != "" {
		out.Title = meta.ogTitle
	} else if meta.title != "" {
		out.Title = meta.title
	}
	if meta.ogDescription != "" {
		out.Description = meta.ogDescription
	} else if meta.metaDescription != "" {
		out.Description = meta.metaDescription
	}
	out.ImageURL = meta.ogImage
	return out
}

type pageMetadata struct {
	title           string
	ogTitle         string
	ogDescription   string
	ogImage         string
	metaDescription string
}

func parseMetadata(r io.Reader) (pageMetadata, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return pageMetadata{}, err
	}
	var meta pageMetadata
	var walk func(*html.Node, int)
	walk = func(n *html.Node, depth int) {
		if depth > maxScanDepth {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && meta.title == "" {
					meta.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				property, name, content := "", "", ""
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property":
						property = attr.Val
					case "name":
						name = attr.Val
					case "content":
						content = attr.Val
					}
				}
				switch {
				case property == "og:title" && meta.ogTitle == "":
					meta.ogTitle = strings.TrimSpace(content)
				case property == "og:description" && meta.ogDescription == "":
					meta.ogDescription = strings.TrimSpace(content)
				case property == "og:image" && meta.ogImage == "":
					meta.ogImage = strings.TrimSpace(content)
				case name == "description" && meta.metaDescription == "":
					meta.metaDescription = strings.TrimSpace(content)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, depth+1)
		}
	}
	walk(doc, 0)
	return meta, nil
}
