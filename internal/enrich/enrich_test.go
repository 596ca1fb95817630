package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenbot/internal/format"
	"tokenbot/internal/model"
	logx "tokenbot/pkg/logx"
)

func ptr[T any](v T) *T { return &v }

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchJSONMetadata(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "Foo",
			"symbol": "FOO",
			"description": "a token",
			"image": "http://x/img.png",
			"twitter": "https://x.com/foo",
			"extensions": {"website": "https://foo.io", "twitter": "ignored"},
			"properties": {"links": {"discord": "https://discord.gg/foo"}}
		}`))
	})

	e := New(Config{}, logx.Nop())
	md := e.Fetch(context.Background(), srv.URL+"/meta.json")
	require.NotNil(t, md)
	assert.Equal(t, "Foo", md.Name)
	assert.Equal(t, "FOO", md.Symbol)
	assert.Equal(t, "a token", md.Description)
	assert.Equal(t, "http://x/img.png", md.Image)
	assert.Equal(t, model.Links{
		Website: "https://foo.io",
		Twitter: "https://x.com/foo",
		Discord: "https://discord.gg/foo",
	}, md.Links)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchImageContentType(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	uri := srv.URL + "/logo"
	md := New(Config{}, logx.Nop()).Fetch(context.Background(), uri)
	require.NotNil(t, md)
	assert.Equal(t, &model.Metadata{Image: uri}, md)
}

func TestFetchUnreachableIsNone(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := New(Config{Timeout: time.Second}, logx.Nop())
	assert.Nil(t, e.Fetch(context.Background(), url+"/gone.json"))
}

func TestFetchNon2xxIsNone(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	assert.Nil(t, New(Config{}, logx.Nop()).Fetch(context.Background(), srv.URL))
}

func TestFetchInvalidJSONFallsBackToImage(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("not json at all"))
	})
	uri := srv.URL + "/blob"
	md := New(Config{}, logx.Nop()).Fetch(context.Background(), uri)
	require.NotNil(t, md)
	assert.Equal(t, uri, md.Image)
	assert.Empty(t, md.Name)
}

func TestFetchEmptyDocumentIsNone(t *testing.T) {
	for _, body := range []string{`{}`, `{"name":"  ","extensions":{"twitter":"@foo"}}`} {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
		uri := srv.URL + "/meta.json"
		ev := model.Event{VID: 7, TokenName: ptr("Record"), TokenURI: ptr(uri)}

		md := New(Config{}, logx.Nop()).Fetch(context.Background(), ev.URI())
		assert.Nil(t, md, body)

		msg := format.Format(ev, md)
		assert.False(t, msg.HasImage(), body)
		assert.Contains(t, msg.Text, "🔗 Metadata: "+uri, body)
		assert.Contains(t, msg.Text, "Record", body)
	}
}

func TestFetchDropsNonHTTPLinks(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"name": "Foo",
			"website": "javascript:alert(1)",
			"twitter": "@foo",
			"extensions": {"twitter": "https://x.com/foo", "telegram": "t.me/foo"}
		}`))
	})
	md := New(Config{}, logx.Nop()).Fetch(context.Background(), srv.URL)
	require.NotNil(t, md)
	assert.Equal(t, model.Links{Twitter: "https://x.com/foo"}, md.Links)
}

func TestFetchEmptyURI(t *testing.T) {
	assert.Nil(t, New(Config{}, logx.Nop()).Fetch(context.Background(), "   "))
}

func TestFetchRespectsMaxBytes(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"` + strings.Repeat("a", 2048) + `"}`))
	})
	e := New(Config{MaxBytes: 512}, logx.Nop())
	assert.Nil(t, e.Fetch(context.Background(), srv.URL))
}

func TestResolveGateways(t *testing.T) {
	e := New(Config{IPFSGateway: "https://gw.test/ipfs", ArweaveGateway: "https://ar.test"}, logx.Nop())
	assert.Equal(t, "https://gw.test/ipfs/Qm123", e.Resolve("ipfs://Qm123"))
	assert.Equal(t, "https://gw.test/ipfs/Qm123/a.json", e.Resolve("ipfs://ipfs/Qm123/a.json"))
	assert.Equal(t, "https://ar.test/tx1", e.Resolve("ar://tx1"))
	assert.Equal(t, "https://x/y", e.Resolve(" https://x/y "))
}

func TestFetchRewritesDecodedImage(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"Bar","image":"ipfs://QmImg"}`))
	})
	md := New(Config{}, logx.Nop()).Fetch(context.Background(), srv.URL)
	require.NotNil(t, md)
	assert.Equal(t, DefaultIPFSGateway+"QmImg", md.Image)
}
