package content

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/severalx/site/internal/domain"
)

// DefaultDisplayLimit is how many items a publications section shows.
const DefaultDisplayLimit = 3

// Fallback messages when neither source carries its own error.
const (
	MsgUnreachable = "Unable to reach publications."
	MsgFetchFailed = "Error while fetching posts"
)

// Fetcher runs one collection query. *Client implements it.
type Fetcher interface {
	FetchCollection(ctx context.Context, name domain.Collection, limit int) *domain.ContentQueryResult
}

// Aggregator composes the featured and recent collections into one list.
type Aggregator struct {
	fetcher Fetcher
	limit   int
}

// NewAggregator creates an aggregator. limit <= 0 uses DefaultDisplayLimit.
func NewAggregator(f Fetcher, limit int) *Aggregator {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}
	return &Aggregator{fetcher: f, limit: limit}
}

// Compose fetches both collections concurrently and merges them.
func (a *Aggregator) Compose(ctx context.Context) domain.DisplayList {
	var featured, recent *domain.ContentQueryResult

	var g errgroup.Group
	g.Go(func() error {
		featured = a.fetcher.FetchCollection(ctx, domain.CollectionFeatured, a.limit)
		return nil
	})
	g.Go(func() error {
		recent = a.fetcher.FetchCollection(ctx, domain.CollectionRecent, a.limit*2)
		return nil
	})
	_ = g.Wait()

	return Merge(featured, recent, a.limit)
}

// Merge applies the display policy to two settled results. A nil result
// means the fetch produced no data.
func Merge(featured, recent *domain.ContentQueryResult, limit int) domain.DisplayList {
	switch {
	case featured.OK() && len(featured.Posts) >= limit:
		return domain.DisplayList{
			Items:      append([]domain.ContentItem(nil), featured.Posts[:limit]...),
			SourceMode: domain.SourceFeaturedOnly,
		}

	case featured.OK() && len(featured.Posts) > 0:
		var recentPosts []domain.ContentItem
		if recent.OK() {
			recentPosts = recent.Posts
		}
		merged := newDeduper(limit)
		if len(recentPosts) > 0 {
			merged.add(recentPosts[:1]...)
			recentPosts = recentPosts[1:]
		}
		merged.add(featured.Posts...)
		merged.add(recentPosts...)
		return domain.DisplayList{Items: merged.items, SourceMode: domain.SourceMixed}

	case recent.OK() && len(recent.Posts) > 0:
		n := min(limit, len(recent.Posts))
		return domain.DisplayList{
			Items:      append([]domain.ContentItem(nil), recent.Posts[:n]...),
			SourceMode: domain.SourceRecentOnly,
		}
	}

	return domain.DisplayList{Items: []domain.ContentItem{}, Error: fallbackError(featured, recent)}
}

func fallbackError(featured, recent *domain.ContentQueryResult) string {
	switch {
	case featured != nil && featured.Error != "":
		return featured.Error
	case recent != nil && recent.Error != "":
		return recent.Error
	case featured == nil && recent == nil:
		return MsgUnreachable
	default:
		return MsgFetchFailed
	}
}

type deduper struct {
	limit int
	seen  map[string]struct{}
	items []domain.ContentItem
}

func newDeduper(limit int) *deduper {
	return &deduper{limit: limit, seen: make(map[string]struct{}), items: make([]domain.ContentItem, 0, limit)}
}

func (d *deduper) add(items ...domain.ContentItem) {
	for _, item := range items {
		if len(d.items) >= d.limit {
			return
		}
		if _, dup := d.seen[item.ID]; dup {
			continue
		}
		d.seen[item.ID] = struct{}{}
		d.items = append(d.items, item)
	}
}
