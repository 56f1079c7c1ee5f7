// Package domain contains core domain types for the site backend.
package domain

// Collection names a fixed CMS query.
type Collection string

const (
	CollectionFeatured    Collection = "featured"
	CollectionRecent      Collection = "recent"
	CollectionCaseStudies Collection = "case-studies"
)

// Collections lists every valid collection in display order.
var Collections = []Collection{CollectionFeatured, CollectionRecent, CollectionCaseStudies}

// ParseCollection validates a collection name.
func ParseCollection(name string) (Collection, bool) {
	for _, c := range Collections {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}
