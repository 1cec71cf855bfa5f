package extraction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const facilityHTML = `
<html>
<head><title>Acme Fablab</title></head>
<body>
	<h1 class="name">Acme</h1>
	<span class="location">Test City</span>
	<span class="count">3</span>
	<div class="skills">
		<span>Python</span>
		<span>  </span>
		<span>Go</span>
	</div>
	<p class="contact">Mail INFO@acme.org today</p>
	<a class="site" href="https://acme.org">Website</a>
	<ul><li>a</li><li>b</li><li>c</li></ul>
</body>
</html>
`

func parse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseDocument(s)
	require.NoError(t, err)
	return doc
}

func TestExtractSelector(t *testing.T) {
	x := NewExtractor()
	doc := parse(t, facilityHTML)

	text, err := x.Extract(doc, "h1.name")
	require.NoError(t, err)
	assert.Equal(t, "Acme", text)

	// Blank nodes are dropped before joining
	text, err = x.Extract(doc, "div.skills span")
	require.NoError(t, err)
	assert.Equal(t, "Python, Go", text)

	_, err = x.Extract(doc, "a.nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractSelectorJoinSeparator(t *testing.T) {
	x := NewExtractor(WithJoinSeparator(" | "))
	text, err := x.Extract(parse(t, facilityHTML), "div.skills span")
	require.NoError(t, err)
	assert.Equal(t, "Python | Go", text)
}

func TestExtractSelectorSyntaxError(t *testing.T) {
	_, err := NewExtractor().Extract(parse(t, facilityHTML), "div[")

	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, SelectorError, ee.Kind)
	assert.Equal(t, "div[", ee.Rule)
}

func TestExtractTreeQuery(t *testing.T) {
	x := NewExtractor()
	doc := parse(t, facilityHTML)

	tests := []struct {
		expr string
		want string
	}{
		{"//h1[@class='name']", "Acme"},
		{"//a[@class='site']/@href", "https://acme.org"},
		{"//li", "a"},
		{"//title", "Acme Fablab"},
		{"//li = 'a'", "true"},
		{"//li = 'z'", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			text, err := x.Extract(doc, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}

	_, err := x.Extract(doc, "//table")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestXPathQuerierScalarResults(t *testing.T) {
	root := parse(t, facilityHTML).Root()

	tests := []struct {
		expr  string
		want  string
		found bool
	}{
		{"string(//span[@class='location'])", "Test City", true},
		{"count(//li)", "3", true},
		{"string(//table)", "", false},
		{"number('x')", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			text, found, err := XPathQuerier{}.QueryText(root, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestExtractTreeQuerySyntaxError(t *testing.T) {
	_, err := NewExtractor().Extract(parse(t, facilityHTML), "//invalid[*syntax*")

	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, QueryError, ee.Kind)
}

func TestExtractTreeQueryUnavailable(t *testing.T) {
	x := NewExtractor(WithTreeQuerier(nil))
	assert.Nil(t, x.tree)

	_, err := x.Extract(parse(t, facilityHTML), "//h1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Degraded mode does not care about syntax either
	_, err = x.Extract(parse(t, facilityHTML), "//invalid[*syntax*")
	assert.ErrorIs(t, err, ErrNotFound)
}

type mockTreeQuerier struct {
	mock.Mock
}

func (m *mockTreeQuerier) QueryText(root *html.Node, expr string) (string, bool, error) {
	args := m.Called(root, expr)
	return args.String(0), args.Bool(1), args.Error(2)
}

func TestExtractTreeQueryInjected(t *testing.T) {
	q := new(mockTreeQuerier)
	q.On("QueryText", mock.Anything, "//custom").Return("from querier", true, nil)
	q.On("QueryText", mock.Anything, "//broken").Return("", false, errors.New("engine down"))
	q.On("QueryText", mock.Anything, "//empty").Return("", false, nil)

	x := NewExtractor(WithTreeQuerier(q))
	doc := parse(t, facilityHTML)

	text, err := x.Extract(doc, "//custom")
	require.NoError(t, err)
	assert.Equal(t, "from querier", text)

	_, err = x.Extract(doc, "//broken")
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, QueryError, ee.Kind)
	assert.EqualError(t, ee.Unwrap(), "engine down")

	_, err = x.Extract(doc, "//empty")
	assert.ErrorIs(t, err, ErrNotFound)

	q.AssertExpectations(t)
}

type panickingQuerier struct{}

func (panickingQuerier) QueryText(*html.Node, string) (string, bool, error) {
	panic("boom")
}

func TestExtractRecoversEnginePanic(t *testing.T) {
	x := NewExtractor(WithTreeQuerier(panickingQuerier{}))

	_, err := x.Extract(parse(t, facilityHTML), "//h1")
	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, QueryError, ee.Kind)
	assert.Contains(t, ee.Error(), "boom")
}

func TestExtractPattern(t *testing.T) {
	x := NewExtractor()
	doc := parse(t, facilityHTML)

	text, err := x.Extract(doc, `/[a-z]+@acme\.org/`)
	require.NoError(t, err)
	assert.Equal(t, "INFO@acme.org", text)

	// Capture groups are ignored; the whole match is returned
	text, err = x.Extract(doc, `/mail (\w+)@/`)
	require.NoError(t, err)
	assert.Equal(t, "Mail INFO@", text)

	text, err = x.Extract(doc, "^<html")
	require.NoError(t, err)
	assert.Equal(t, "<html", text)

	_, err = x.Extract(doc, "/zzz-not-here/")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractPatternSyntaxError(t *testing.T) {
	_, err := NewExtractor().Extract(parse(t, facilityHTML), "/(unclosed/")

	var ee *ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, PatternError, ee.Kind)
}

func TestExtractPatternCache(t *testing.T) {
	x := NewExtractor()
	doc := parse(t, facilityHTML)

	for i := 0; i < 3; i++ {
		_, err := x.Extract(doc, "/acme/")
		require.NoError(t, err)
	}
	_, ok := x.patternCache.Load("acme")
	assert.True(t, ok)
}

func TestExtractUnknownRule(t *testing.T) {
	_, err := NewExtractor().Extract(parse(t, facilityHTML), "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseDocumentTooLarge(t *testing.T) {
	big := make([]byte, MaxHTMLSize+1)
	_, err := ParseDocument(string(big))
	assert.True(t, IsParsingError(err))
}

func TestParseDocumentLatin1(t *testing.T) {
	// "Café" in ISO-8859-1
	doc, err := ParseDocument("<html><body><h1>Caf\xe9 Fablab</h1></body></html>")
	require.NoError(t, err)

	text, err := NewExtractor().Extract(doc, "h1")
	require.NoError(t, err)
	assert.Contains(t, text, "Fablab")
}
