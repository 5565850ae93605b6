package hunter

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/veillant/huntd/fetch"
)

// Fetcher is the fetch layer the extractors run against. In production
// this is a *fetch.Cache so head+html missions on the same URL share one
// request per cycle.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// extractor derives the comparable content for one mission type.
type extractor func(ctx context.Context, f Fetcher, m *Mission) (string, error)

// extractors is the closed dispatch table, one entry per Type.
var extractors = map[Type]extractor{
	TypeHead: extractHead,
	TypeHTML: extractHTML,
	TypeJS:   extractBody,
	TypeText: extractBody,
}

// Extract dispatches to the extractor for the mission's type. An
// unrecognized type fails with *UnsupportedTypeError without touching
// the fetch layer.
func Extract(ctx context.Context, f Fetcher, m *Mission) (string, error) {
	ex, ok := extractors[m.Type]
	if !ok {
		return "", &UnsupportedTypeError{Type: string(m.Type)}
	}
	return ex(ctx, f, m)
}

// volatileHeaders change on every response (or per request) and would
// make every head comparison a false positive.
var volatileHeaders = map[string]bool{
	"age":              true,
	"alt-svc":          true,
	"cf-ray":           true,
	"date":             true,
	"expires":          true,
	"keep-alive":       true,
	"nel":              true,
	"report-to":        true,
	"server-timing":    true,
	"set-cookie":       true,
	"x-amz-request-id": true,
	"x-request-id":     true,
	"x-runtime":        true,
	"x-served-by":      true,
	"x-timer":          true,
	"x-transaction-id": true,
	"x-varnish":        true,
}

// extractHead fingerprints the response status and headers. Header names
// are lowercased and sorted so the serialization is order-independent;
// volatile headers are excluded. The body is ignored.
func extractHead(ctx context.Context, f Fetcher, m *Mission) (string, error) {
	result, err := f.Fetch(ctx, m.URL)
	if err != nil {
		return "", &FetchError{URL: m.URL, Err: err}
	}

	names := make([]string, 0, len(result.Header))
	for name := range result.Header {
		lower := strings.ToLower(name)
		if !volatileHeaders[lower] {
			names = append(names, lower)
		}
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "HTTP %d\n", result.StatusCode)
	for _, name := range names {
		// Header.Values canonicalizes the key itself.
		values := result.Header.Values(name)
		fmt.Fprintf(&sb, "%s: %s\n", name, strings.Join(values, ", "))
	}
	return sb.String(), nil
}

// extractBody returns the raw response body as text. Used for txt and js
// missions; js bodies are compared as opaque text, nothing is executed.
func extractBody(ctx context.Context, f Fetcher, m *Mission) (string, error) {
	result, err := f.Fetch(ctx, m.URL)
	if err != nil {
		return "", &FetchError{URL: m.URL, Err: err}
	}
	return string(result.Body), nil
}

// mdConverter normalizes HTML to markdown for stable comparison.
// Safe for concurrent use.
var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// sanitizer strips scripts, styles and event handlers before the markup
// is normalized, so cache-busting script URLs don't show up as changes.
var sanitizer = bluemonday.UGCPolicy()

// extractHTML fetches the body and normalizes the markup to markdown, so
// cosmetic attribute churn doesn't register as a change. When the
// normalization produces nothing (e.g. the body is not HTML at all) it
// falls back to the visible text, then to the raw body.
func extractHTML(ctx context.Context, f Fetcher, m *Mission) (string, error) {
	result, err := f.Fetch(ctx, m.URL)
	if err != nil {
		return "", &FetchError{URL: m.URL, Err: err}
	}

	clean := sanitizer.SanitizeBytes(result.Body)
	md, err := mdConverter.ConvertString(string(clean), converter.WithDomain(siteDomain(m.URL)))
	if err == nil && strings.TrimSpace(md) != "" {
		return strings.TrimSpace(md), nil
	}

	if text := collectText(result.Body); text != "" {
		return text, nil
	}
	return string(result.Body), nil
}

// siteDomain reduces a mission URL to its scheme://host base so the
// markdown converter resolves relative links against the site root, not
// the full page URL.
func siteDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

// collectText extracts the visible text of an HTML document, skipping
// script, style and noscript subtrees.
func collectText(raw []byte) string {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}
