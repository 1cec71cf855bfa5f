package extraction

import (
	"fmt"
	"math"
	"strconv"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// TreeQuerier is the optional tree-query capability. A nil TreeQuerier on
// the Extractor means tree-query rules always report not found.
type TreeQuerier interface {
	// QueryText evaluates expr against root and returns the text of the first
	// result. found=false means the query ran and matched nothing.
	QueryText(root *html.Node, expr string) (text string, found bool, err error)
}

// XPathQuerier answers tree queries with antchfx/xpath over htmlquery nodes
type XPathQuerier struct{}

// QueryText implements TreeQuerier. Node-set results yield the first node's
// string value (inner text for elements, value for attributes); scalar
// results from functions such as string() or count() are rendered as text.
func (XPathQuerier) QueryText(root *html.Node, expr string) (string, bool, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return "", false, err
	}

	switch v := compiled.Evaluate(htmlquery.CreateXPathNavigator(root)).(type) {
	case *xpath.NodeIterator:
		if !v.MoveNext() {
			return "", false, nil
		}
		return v.Current().Value(), true, nil
	case string:
		return v, v != "", nil
	case float64:
		if math.IsNaN(v) {
			return "", false, nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	default:
		return "", false, fmt.Errorf("unsupported xpath result type %T", v)
	}
}
