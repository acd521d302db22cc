package fetch

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/vasilistotskas/weblens-sub000/internal/webintel"
)

// blockTags are elements whose boundaries separate words. Without the
// separator, adjacent blocks like <h1>A</h1><p>B</p> would render as
// "AB" and pollute the content hash stream.
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {},
	"dd": {}, "div": {}, "dl": {}, "dt": {}, "fieldset": {}, "figcaption": {},
	"figure": {}, "footer": {}, "form": {}, "h1": {}, "h2": {}, "h3": {},
	"h4": {}, "h5": {}, "h6": {}, "header": {}, "hr": {}, "li": {},
	"main": {}, "nav": {}, "ol": {}, "p": {}, "pre": {}, "section": {},
	"table": {}, "td": {}, "th": {}, "tr": {}, "ul": {},
}

// PageTransformer extracts a title, readable text content, and document
// metadata from raw HTML.
type PageTransformer struct{}

// NewPageTransformer constructs a PageTransformer.
func NewPageTransformer() *PageTransformer {
	return &PageTransformer{}
}

// Transform parses the body and returns the cleaned page.
func (PageTransformer) Transform(url string, body []byte) (webintel.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return webintel.Page{}, fmt.Errorf("parse document %s: %w", url, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	metadata := map[string]string{"source_url": url}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			metadata["description"] = desc
		}
	}

	doc.Find("script, style, noscript, iframe").Remove()
	scope := doc.Find("body")
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	var text strings.Builder
	for _, node := range scope.Nodes {
		collectText(node, &text)
	}
	content := strings.Join(strings.Fields(text.String()), " ")
	if content == "" {
		return webintel.Page{}, fmt.Errorf("document %s has no extractable text", url)
	}

	return webintel.Page{Title: title, Content: content, Metadata: metadata}, nil
}

// collectText appends the subtree's text to b, padding block element
// boundaries with a space. Runs of whitespace are squeezed afterwards.
func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	block := false
	if n.Type == html.ElementNode {
		_, block = blockTags[n.Data]
	}
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if block {
		b.WriteByte(' ')
	}
}
