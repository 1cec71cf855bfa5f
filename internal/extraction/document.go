package extraction

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize limits HTML input to 10MB to prevent memory exhaustion
const MaxHTMLSize = 10 * 1024 * 1024

// Document is a parsed HTML page shared by every rule of one extraction call
type Document struct {
	doc *goquery.Document

	serializeOnce sync.Once
	serialized    string
	serializeErr  error
}

// ParseDocument parses HTML into a Document. Input that is not valid UTF-8 is
// transcoded from its detected charset first.
func ParseDocument(htmlStr string) (*Document, error) {
	if len(htmlStr) > MaxHTMLSize {
		return nil, &ParsingError{Err: fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)}
	}

	var reader io.Reader = strings.NewReader(htmlStr)
	if !utf8.ValidString(htmlStr) {
		label := DetectCharset([]byte(htmlStr))
		if utf8Reader, err := charset.NewReaderLabel(label, strings.NewReader(htmlStr)); err == nil {
			reader = utf8Reader
		}
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, &ParsingError{Err: err}
	}
	return &Document{doc: doc}, nil
}

// DetectCharset detects and returns charset from HTML bytes
func DetectCharset(data []byte) string {
	detector := chardet.NewHtmlDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// Selection returns the document root selection for structural queries
func (d *Document) Selection() *goquery.Selection {
	return d.doc.Selection
}

// Root returns the document node for tree queries
func (d *Document) Root() *html.Node {
	if len(d.doc.Nodes) == 0 {
		return nil
	}
	return d.doc.Nodes[0]
}

// Serialized returns the re-rendered markup used by pattern rules. Rendered
// once per document.
func (d *Document) Serialized() (string, error) {
	d.serializeOnce.Do(func() {
		d.serialized, d.serializeErr = d.doc.Html()
	})
	return d.serialized, d.serializeErr
}
