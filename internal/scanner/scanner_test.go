package scanner

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<div class="file-header"><span class="file-info">internal/api.go</span>
  <div class="review-comment" data-comment-id="c1">
    <span class="line-number">42</span>
    <div class="comment-body"><p>This error handling is terrible</p></div>
    <div class="comment-actions"></div>
  </div>
</div>
<div class="review-comment" data-gentle-review-id="gr-1">
  <div class="comment-body">already seen</div>
</div>
<div class="review-comment">
  <div class="comment-body">has control</div>
  <button class="gentle-review-enhance">Enhance Comment</button>
</div>
<div class="review-comment" data-comment-id="c4">
  <div class="comment-body">   </div>
</div>
<div class="review-comment" data-comment-id="c5"><p>no body</p></div>
</body></html>`

func load(t *testing.T) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc.Selection
}

func TestFindSkipsProcessed(t *testing.T) {
	found := Find(load(t))

	var ids []string
	for _, s := range found {
		id, _ := s.Attr(IDAttr)
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"c1", "c4", "c5"}, ids)
}

func TestExtract(t *testing.T) {
	root := load(t)

	tests := []struct {
		name    string
		sel     string
		want    string
		wantOK  bool
		line    int
		file    string
		checkID string
	}{
		{"full comment", `[data-comment-id="c1"]`, "This error handling is terrible", true, 42, "internal/api.go", "c1"},
		{"blank body", `[data-comment-id="c4"]`, "", true, 0, "", "c4"},
		{"no body", `[data-comment-id="c5"]`, "", false, 0, "", ""},
		{"marker id fallback", `[data-gentle-review-id="gr-1"]`, "already seen", true, 0, "", "gr-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := Extract(root.Find(tt.sel))
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want, c.Content)
			assert.Equal(t, tt.line, c.LineNumber)
			assert.Equal(t, tt.file, c.FilePath)
			assert.Equal(t, tt.checkID, c.ID)
		})
	}
}

func TestByMarker(t *testing.T) {
	root := load(t)

	assert.Equal(t, 1, ByMarker(root, "gr-1").Length())
	assert.Equal(t, 0, ByMarker(root, "gr-404").Length())
}
