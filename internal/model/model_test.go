package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestEventDisplayName(t *testing.T) {
	ev := Event{Mint: "MintAddr"}
	assert.Equal(t, "MintAddr", ev.DisplayName())

	ev.TokenSymbol = ptr("SYM")
	assert.Equal(t, "SYM", ev.DisplayName())

	ev.TokenName = ptr("  Name ")
	assert.Equal(t, "Name", ev.DisplayName())
	assert.Equal(t, "", ev.URI())
}

func TestLinksOrderedSkipsAbsent(t *testing.T) {
	l := Links{Medium: "https://medium.com/@foo", Website: "https://foo.io", Discord: "https://discord.gg/foo"}
	got := l.Ordered()
	assert.Equal(t, []Link{{"Website", "https://foo.io"}, {"Discord", "https://discord.gg/foo"}, {"Medium", "https://medium.com/@foo"}}, got)
	assert.Empty(t, Links{}.Ordered())
}

func TestMetadataEmpty(t *testing.T) {
	var md *Metadata
	assert.True(t, md.Empty())
	assert.True(t, (&Metadata{}).Empty())
	assert.False(t, (&Metadata{Links: Links{Twitter: "https://x.com/foo"}}).Empty())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "🟢 Active", StatusActive.String())
	assert.Equal(t, "Unknown (7)", Status(7).String())
}

func TestOrderedDropsNonHTTPLinks(t *testing.T) {
	l := Links{
		Website:  "javascript:alert(1)",
		Twitter:  "@handle",
		Telegram: "https://t.me/foo",
		Discord:  "ftp://discord.example/x",
		Github:   "https://",
		Medium:   " http://medium.com/foo ",
	}
	assert.Equal(t, []Link{{"Telegram", "https://t.me/foo"}, {"Medium", "http://medium.com/foo"}}, l.Ordered())
	assert.True(t, (&Metadata{Links: Links{Twitter: "@handle"}}).Empty())
}

func TestIsLinkURL(t *testing.T) {
	assert.True(t, IsLinkURL("https://foo.io/path?q=1"))
	assert.True(t, IsLinkURL("http://foo.io"))
	assert.False(t, IsLinkURL(""))
	assert.False(t, IsLinkURL("foo.io"))
	assert.False(t, IsLinkURL("javascript:alert(1)"))
	assert.False(t, IsLinkURL("data:text/html,hi"))
	assert.False(t, IsLinkURL("%zz"))
}
