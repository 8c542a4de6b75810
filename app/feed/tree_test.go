package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTreeResolvesPrefixes(t *testing.T) {
	data := `<rss xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"><channel>
		<itunes:image href="https://example.com/show.jpg"/>
		<item><title>  One  </title></item>
	</channel></rss>`

	doc, err := ParseTree([]byte(data))
	require.NoError(t, err)
	require.Len(t, doc.Children, 1)

	rss := doc.Children[0]
	assert.Equal(t, "rss", rss.Name)

	channel := rss.Child("channel")
	require.NotNil(t, channel)

	image := channel.Child("itunes:image")
	require.NotNil(t, image)
	assert.Equal(t, "image", image.Local)
	assert.Equal(t, "https://example.com/show.jpg", image.Attr("href"))

	items := doc.ElementsByTagName("item")
	require.Len(t, items, 1)
	assert.Equal(t, "One", items[0].Child("title").Text())
}

func TestParseTreeUndeclaredPrefix(t *testing.T) {
	doc, err := ParseTree([]byte(`<rss><channel><media:thumbnail url="x"/></channel></rss>`))
	require.NoError(t, err)

	thumbs := doc.ElementsByTagName("media:thumbnail")
	require.Len(t, thumbs, 1)
	assert.Equal(t, "x", thumbs[0].Attr("url"))
}

func TestNilElementAccessors(t *testing.T) {
	var el *Element

	assert.Nil(t, el.Child("title"))
	assert.Empty(t, el.Attr("href"))
	assert.Empty(t, el.Text())
	assert.Empty(t, el.ElementsByTagName("item"))
}

func TestParseTreeCharset(t *testing.T) {
	// "Café" in ISO-8859-1
	data := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><rss><title>Caf`), 0xE9, '<', '/', 't', 'i', 't', 'l', 'e', '>', '<', '/', 'r', 's', 's', '>')

	doc, err := ParseTree(data)
	require.NoError(t, err)
	assert.Equal(t, "Café", doc.ElementsByTagName("title")[0].Text())
}
