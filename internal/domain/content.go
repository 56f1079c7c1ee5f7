package domain

import (
	"time"
)

// Tag is a CMS tag attached to a post.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ContentItem is a published article as the site displays it.
type ContentItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	PublishedAt  time.Time `json:"published_at"`
	Excerpt      string    `json:"excerpt"`
	FeatureImage string    `json:"feature_image,omitempty"`
	ReadingTime  int       `json:"reading_time"`
	Tags         []Tag     `json:"tags"`
	URL          string    `json:"url"`
}

// Pagination describes one page of a CMS listing.
type Pagination struct {
	Page  int  `json:"page"`
	Limit int  `json:"limit"`
	Pages int  `json:"pages"`
	Total int  `json:"total"`
	Next  *int `json:"next,omitempty"`
	Prev  *int `json:"prev,omitempty"`
}

// Meta wraps pagination the way the CMS returns it.
type Meta struct {
	Pagination Pagination `json:"pagination"`
}

// ContentQueryResult is the outcome of one collection fetch.
// When Error is set, Posts is a fallback and must not be treated as authoritative.
type ContentQueryResult struct {
	Posts []ContentItem `json:"posts"`
	Meta  Meta          `json:"meta"`
	Error string        `json:"error,omitempty"`
}

// OK reports whether r is a usable, non-error result.
func (r *ContentQueryResult) OK() bool {
	return r != nil && r.Error == ""
}

// EmptyResult returns a fallback result carrying errMsg.
func EmptyResult(limit int, errMsg string) *ContentQueryResult {
	return &ContentQueryResult{
		Posts: []ContentItem{},
		Meta:  Meta{Pagination: Pagination{Page: 1, Limit: limit}},
		Error: errMsg,
	}
}

// SourceMode records which policy branch produced a DisplayList.
type SourceMode string

const (
	SourceFeaturedOnly SourceMode = "featured-only"
	SourceMixed        SourceMode = "mixed"
	SourceRecentOnly   SourceMode = "recent-only"
)

// DisplayList is the merged, deduplicated list a page section renders.
type DisplayList struct {
	Items      []ContentItem `json:"items"`
	SourceMode SourceMode    `json:"source_mode,omitempty"`
	Error      string        `json:"error,omitempty"`
}
