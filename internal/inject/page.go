package inject

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// MaxPageSize caps host page input at 10MB.
const MaxPageSize = 10 * 1024 * 1024

// FeedSelector is the structural query locating the host page's timeline
// container.
const FeedSelector = `div[data-testid="primaryColumn"] section > div > div`

// feedXPath is the equivalent probe for documents where the CSS query comes
// up empty (some shells nest an extra wrapper the selector misses).
const feedXPath = `//div[@data-testid='primaryColumn']//section/div/div`

// Page is the injector's handle on the host page. The host mutates its DOM
// asynchronously, so the injector re-queries Document on every probe rather
// than holding a selection across polls.
type Page interface {
	Document() *goquery.Document
}

// StaticPage wraps a single parsed document. The document itself is live:
// injections mutate it in place.
type StaticPage struct {
	mu  sync.Mutex
	doc *goquery.Document
}

// NewPage wraps an already-parsed document.
func NewPage(doc *goquery.Document) *StaticPage {
	return &StaticPage{doc: doc}
}

// Document returns the live document.
func (p *StaticPage) Document() *goquery.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// Replace swaps in a new document, modeling a host-page rerender.
func (p *StaticPage) Replace(doc *goquery.Document) {
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
}

// LoadPage parses host page HTML with automatic charset detection.
func LoadPage(r io.Reader) (*StaticPage, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("page content required")
	}
	if len(data) > MaxPageSize {
		return nil, fmt.Errorf("page exceeds maximum size of %d bytes", MaxPageSize)
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(data), detectCharset(data))
	if err != nil {
		// Fall back to parsing the raw bytes.
		utf8Reader = bytes.NewReader(data)
	}

	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return NewPage(doc), nil
}

// LoadPageString parses host page HTML from a string.
func LoadPageString(html string) (*StaticPage, error) {
	return LoadPage(strings.NewReader(html))
}

func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// findFeed locates the host timeline container, trying the CSS selector
// first and the XPath probe second. Returns nil when the host page has not
// rendered it yet.
func findFeed(doc *goquery.Document) *goquery.Selection {
	if sel := doc.Find(FeedSelector).First(); sel.Length() > 0 {
		return sel
	}

	if len(doc.Nodes) == 0 {
		return nil
	}
	node, err := htmlquery.Query(doc.Nodes[0], feedXPath)
	if err != nil || node == nil {
		return nil
	}
	if sel := doc.FindNodes(node); sel.Length() > 0 {
		return sel
	}
	return nil
}
