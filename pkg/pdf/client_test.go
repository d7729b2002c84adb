package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPagesByPageDivs(t *testing.T) {
	xhtml := `<html><body>
<div class="page"><p>First page text.</p></div>
<div class="page"><p>Second page &amp; more.</p></div>
</body></html>`

	pages := SplitPages(xhtml)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].PageNo)
	assert.Contains(t, pages[0].Text, "First page text.")
	assert.Equal(t, 2, pages[1].PageNo)
	assert.Contains(t, pages[1].Text, "Second page & more.")
	// 标签被剥离
	assert.NotContains(t, pages[0].Text, "<p>")
}

func TestSplitPagesNoDivsWholeDocumentAsPageOne(t *testing.T) {
	xhtml := `<html><body><p>Plain document without page markers.</p></body></html>`

	pages := SplitPages(xhtml)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNo)
	assert.Contains(t, pages[0].Text, "Plain document without page markers.")
}

func TestSplitPagesEmptyDocument(t *testing.T) {
	assert.Nil(t, SplitPages("<html><body></body></html>"))
	assert.Nil(t, SplitPages(""))
}

func TestSplitPagesUnescapesEntities(t *testing.T) {
	xhtml := `<div class="page">a &lt; b &gt; c &quot;d&quot; &#39;e&#39;&nbsp;f</div>`

	pages := SplitPages(xhtml)
	require.Len(t, pages, 1)
	assert.Equal(t, `a < b > c "d" 'e' f`, pages[0].Text)
}
