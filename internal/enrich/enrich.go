// Package enrich fetches the off-chain metadata document a token points at.
//
// Enrichment is best-effort: every failure is logged and reported as "no
// metadata", so a broken URI never blocks a notification.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"tokenbot/internal/model"
	logx "tokenbot/pkg/logx"
)

const (
	DefaultTimeout              = 10 * time.Second
	DefaultMaxBytes       int64 = 1 << 20
	DefaultIPFSGateway          = "https://ipfs.io/ipfs/"
	DefaultArweaveGateway       = "https://arweave.net/"
	DefaultUserAgent            = "tokenbot/1.0"
)

type Config struct {
	Timeout        time.Duration
	MaxBytes       int64
	IPFSGateway    string
	ArweaveGateway string
	UserAgent      string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if strings.TrimSpace(c.IPFSGateway) == "" {
		c.IPFSGateway = DefaultIPFSGateway
	}
	if strings.TrimSpace(c.ArweaveGateway) == "" {
		c.ArweaveGateway = DefaultArweaveGateway
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if !strings.HasSuffix(c.IPFSGateway, "/") {
		c.IPFSGateway += "/"
	}
	if !strings.HasSuffix(c.ArweaveGateway, "/") {
		c.ArweaveGateway += "/"
	}
	return c
}

// Enricher resolves token_uri values into model.Metadata.
type Enricher struct {
	cfg    Config
	client *http.Client
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) *Enricher {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Enricher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// Resolve maps ipfs:// and ar:// URIs onto the configured HTTP gateways.
// Other values are returned trimmed and unchanged.
func (e *Enricher) Resolve(uri string) string {
	uri = strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		p := strings.TrimPrefix(uri, "ipfs://")
		p = strings.TrimPrefix(p, "ipfs/")
		return e.cfg.IPFSGateway + p
	case strings.HasPrefix(uri, "ar://"):
		return e.cfg.ArweaveGateway + strings.TrimPrefix(uri, "ar://")
	default:
		return uri
	}
}

// Fetch downloads and interprets uri. It returns nil when there is nothing
// usable; it never fails the caller.
func (e *Enricher) Fetch(ctx context.Context, uri string) *model.Metadata {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	target := e.Resolve(uri)
	log := e.log.With(logx.String("uri", uri))

	started := time.Now()
	body, ctype, err := e.get(ctx, target)
	if err != nil {
		log.Warn("metadata fetch failed", logx.Err(err), logx.Duration("took", time.Since(started)))
		return nil
	}

	if isImage(ctype) {
		return &model.Metadata{Image: target}
	}

	md, err := decode(body)
	if err != nil {
		log.Debug("metadata is not json; treating uri as image", logx.Err(err))
		return &model.Metadata{Image: target}
	}
	if md.Empty() {
		log.Debug("metadata document has no usable fields")
		return nil
	}
	if md.Image != "" {
		md.Image = e.Resolve(md.Image)
	}
	log.Debug("metadata fetched", logx.String("name", md.Name), logx.Duration("took", time.Since(started)))
	return md
}

func (e *Enricher) get(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, image/*;q=0.8, */*;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	ctype := resp.Header.Get("Content-Type")
	if isImage(ctype) {
		return nil, ctype, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(body)) > e.cfg.MaxBytes {
		return nil, "", errors.New("metadata document too large")
	}
	return body, ctype, nil
}

func isImage(ctype string) bool {
	if ctype == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ctype)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(ctype))
	}
	return strings.HasPrefix(mt, "image/")
}

type linkFields struct {
	Website  string `json:"website"`
	Twitter  string `json:"twitter"`
	Telegram string `json:"telegram"`
	Discord  string `json:"discord"`
	Github   string `json:"github"`
	Medium   string `json:"medium"`
}

func (l linkFields) merge(o linkFields) linkFields {
	pick := func(a, b string) string {
		if a = strings.TrimSpace(a); model.IsLinkURL(a) {
			return a
		}
		if b = strings.TrimSpace(b); model.IsLinkURL(b) {
			return b
		}
		return ""
	}
	return linkFields{
		Website:  pick(l.Website, o.Website),
		Twitter:  pick(l.Twitter, o.Twitter),
		Telegram: pick(l.Telegram, o.Telegram),
		Discord:  pick(l.Discord, o.Discord),
		Github:   pick(l.Github, o.Github),
		Medium:   pick(l.Medium, o.Medium),
	}
}

type document struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
	linkFields
	Extensions linkFields `json:"extensions"`
	Properties struct {
		Links linkFields `json:"links"`
	} `json:"properties"`
}

// decode reads a Metaplex-style JSON document. Top-level link fields win
// over extensions, which win over properties.links.
func decode(body []byte) (*model.Metadata, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	links := doc.linkFields.merge(doc.Extensions).merge(doc.Properties.Links)
	return &model.Metadata{
		Name:        strings.TrimSpace(doc.Name),
		Symbol:      strings.TrimSpace(doc.Symbol),
		Description: strings.TrimSpace(doc.Description),
		Image:       strings.TrimSpace(doc.Image),
		Links: model.Links{
			Website:  links.Website,
			Twitter:  links.Twitter,
			Telegram: links.Telegram,
			Discord:  links.Discord,
			Github:   links.Github,
			Medium:   links.Medium,
		},
	}, nil
}
