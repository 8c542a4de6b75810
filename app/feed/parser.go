package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

const (
	descriptionLimit   = 150
	defaultDescription = "No description available"
	recentDate         = "Recent"
	publishedLayout    = "02-01-06 03:04pm"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

type Parser struct {
	placeholderImage string
	location         *time.Location
}

// NewParser creates a parser that falls back to placeholderImage for episodes
// without artwork and renders dates in loc (time.Local when nil).
func NewParser(placeholderImage string, loc *time.Location) *Parser {
	if placeholderImage == "" {
		placeholderImage = DefaultPlaceholderImage
	}
	if loc == nil {
		loc = time.Local
	}
	return &Parser{
		placeholderImage: placeholderImage,
		location:         loc,
	}
}

func (p *Parser) Run(data []byte) ([]Episode, error) {
	if len(bytes.TrimSpace(data)) == 0 || !bytes.Contains(data, []byte("<rss")) {
		return nil, &ParseError{Reason: ReasonInvalidFeed}
	}
	if feedType := gofeed.DetectFeedType(bytes.NewReader(data)); feedType != gofeed.FeedTypeRSS {
		return nil, &ParseError{Reason: ReasonInvalidFeed, Err: fmt.Errorf("detected feed type %d", feedType)}
	}

	doc, err := ParseTree(data)
	if err != nil {
		return nil, &ParseError{Reason: ReasonInvalidFeed, Err: err}
	}

	items := findItems(doc)
	if len(items) == 0 {
		return nil, &ParseError{Reason: ReasonNoItems}
	}

	episodes := make([]Episode, 0, len(items))
	for position, item := range items {
		episode := p.normalizeItem(item, position)
		if episode.AudioURL == "" {
			slog.Debug("Skipping item without audio", "position", position, "title", episode.Title)
			continue
		}
		episode.Index = len(episodes)
		episodes = append(episodes, episode)
	}

	if len(episodes) == 0 {
		return nil, &ParseError{Reason: ReasonNoValidEpisodes}
	}

	slog.Debug("Feed parsed", "items", len(items), "episodes", len(episodes))

	return episodes, nil
}

// findItems looks up items by tag name, then falls back to the channel's
// direct children, matching any namespace prefix.
func findItems(doc *Element) []*Element {
	items := doc.ElementsByTagName("item")
	if len(items) > 0 {
		return items
	}

	channels := doc.ElementsByTagName("channel")
	if len(channels) == 0 {
		return nil
	}
	for _, child := range channels[0].Children {
		if child.Local == "item" {
			items = append(items, child)
		}
	}
	return items
}

func (p *Parser) normalizeItem(item *Element, position int) Episode {
	fields := map[string]*Element{}
	for _, name := range []string{"title", "enclosure", "pubDate", "description", "itunes:image", "image"} {
		fields[name] = item.Child(name)
	}

	title := stripAngles(fields["title"].Text())
	if title == "" {
		title = fmt.Sprintf("Episode %d", position+1)
	}

	fullDescription := stripTags(fields["description"].Text())
	if fullDescription == "" {
		fullDescription = defaultDescription
	}

	return Episode{
		Title:           title,
		AudioURL:        fields["enclosure"].Attr("url"),
		Published:       p.formatPublished(fields["pubDate"].Text()),
		CoverArtURL:     p.coverArt(fields["itunes:image"], fields["image"]),
		Description:     truncate(fullDescription, descriptionLimit),
		FullDescription: fullDescription,
	}
}

func (p *Parser) coverArt(itunesImage, image *Element) string {
	candidates := []string{
		itunesImage.Attr("href"),
		image.Attr("href"),
		image.Child("url").Text(),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return candidate
		}
	}
	return p.placeholderImage
}

func (p *Parser) formatPublished(raw string) string {
	if raw == "" {
		return recentDate
	}
	published, err := dateparse.ParseAny(raw)
	if err != nil {
		return recentDate
	}
	return published.In(p.location).Format(publishedLayout)
}

func stripAngles(s string) string {
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}

func stripTags(s string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, " "))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
