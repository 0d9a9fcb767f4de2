// Package scanner finds review comments in a page and reads them into
// review.ReviewComment values. It never modifies the document.
package scanner

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/watsumi/gentle-review/internal/review"
)

// Selectors of the host page markup and of the controls fitted to it.
const (
	CommentSelector  = ".review-comment"
	BodySelector     = ".comment-body"
	ActionsSelector  = ".comment-actions"
	LineSelector     = ".line-number"
	FileHeader       = ".file-header"
	FileInfoSelector = ".file-info"
	ControlSelector  = ".gentle-review-enhance"

	// MarkerAttr is set on a comment once it has been fitted with controls.
	MarkerAttr = "data-gentle-review-id"
	// IDAttr carries the host page's own comment id.
	IDAttr = "data-comment-id"
)

// Find returns every comment under root that has not been processed yet.
func Find(root *goquery.Selection) []*goquery.Selection {
	var out []*goquery.Selection
	root.Find(CommentSelector).Each(func(_ int, s *goquery.Selection) {
		if Processed(s) {
			return
		}
		out = append(out, s)
	})
	return out
}

// Processed reports whether el already carries the marker or a control.
func Processed(el *goquery.Selection) bool {
	if _, ok := el.Attr(MarkerAttr); ok {
		return true
	}
	return el.Find(ControlSelector).Length() > 0
}

// Extract reads the comment held by el. It returns false when el has no
// comment body. A body that is present but blank yields empty Content.
func Extract(el *goquery.Selection) (review.ReviewComment, bool) {
	body := el.Find(BodySelector).First()
	if body.Length() == 0 {
		return review.ReviewComment{}, false
	}

	id, ok := el.Attr(IDAttr)
	if !ok || id == "" {
		id, _ = el.Attr(MarkerAttr)
	}

	c := review.ReviewComment{
		ID:       id,
		Content:  strings.TrimSpace(body.Text()),
		FilePath: strings.TrimSpace(el.Closest(FileHeader).Find(FileInfoSelector).First().Text()),
	}
	if line := el.Find(LineSelector).First(); line.Length() > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(line.Text())); err == nil {
			c.LineNumber = n
		}
	}
	return c, true
}

// ByMarker finds the processed comment carrying the given marker id.
func ByMarker(root *goquery.Selection, id string) *goquery.Selection {
	return root.Find(CommentSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr(MarkerAttr)
		return v == id
	}).First()
}
