package ghost

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/severalx/site/internal/domain"
)

const excerptLength = 150

type postsPage struct {
	Posts []post      `json:"posts"`
	Meta  domain.Meta `json:"meta"`
}

type post struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	HTML          string       `json:"html"`
	Plaintext     string       `json:"plaintext"`
	Excerpt       string       `json:"excerpt"`
	CustomExcerpt string       `json:"custom_excerpt"`
	FeatureImage  string       `json:"feature_image"`
	PublishedAt   time.Time    `json:"published_at"`
	ReadingTime   int          `json:"reading_time"`
	URL           string       `json:"url"`
	Tags          []domain.Tag `json:"tags"`
}

func (p postsPage) toResult() *domain.ContentQueryResult {
	items := make([]domain.ContentItem, 0, len(p.Posts))
	for _, post := range p.Posts {
		items = append(items, post.toItem())
	}
	return &domain.ContentQueryResult{Posts: items, Meta: p.Meta}
}

func (p post) toItem() domain.ContentItem {
	tags := p.Tags
	if tags == nil {
		tags = []domain.Tag{}
	}
	return domain.ContentItem{
		ID:           p.ID,
		Title:        p.Title,
		PublishedAt:  p.PublishedAt,
		Excerpt:      p.excerpt(),
		FeatureImage: p.FeatureImage,
		ReadingTime:  p.ReadingTime,
		Tags:         tags,
		URL:          p.URL,
	}
}

// excerpt prefers the author's custom excerpt verbatim, then Ghost's generated
// excerpt, then the post body.
func (p post) excerpt() string {
	if p.CustomExcerpt != "" {
		return p.CustomExcerpt
	}
	if p.Excerpt != "" {
		return Truncate(p.Excerpt, excerptLength)
	}
	if p.Plaintext != "" {
		return Truncate(p.Plaintext, excerptLength)
	}
	return Truncate(textFromHTML(p.HTML), excerptLength)
}

// Truncate cuts s to max runes and appends "..." when anything was removed.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

func textFromHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
