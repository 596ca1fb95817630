package model

import (
	"net/url"
	"strings"
)

// Links holds the optional external links published in token metadata.
type Links struct {
	Website  string `json:"website,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Discord  string `json:"discord,omitempty"`
	Github   string `json:"github,omitempty"`
	Medium   string `json:"medium,omitempty"`
}

// Link is one labelled entry of Links.
type Link struct {
	Label string
	URL   string
}

// IsLinkURL reports whether s is an absolute http(s) URL with a host, the only
// form rendered as a link.
func IsLinkURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Ordered returns the present links in display order:
// website, twitter, telegram, discord, github, medium.
// Values that are not http(s) URLs are skipped.
func (l Links) Ordered() []Link {
	all := []Link{
		{"Website", l.Website},
		{"Twitter", l.Twitter},
		{"Telegram", l.Telegram},
		{"Discord", l.Discord},
		{"GitHub", l.Github},
		{"Medium", l.Medium},
	}
	out := make([]Link, 0, len(all))
	for _, k := range all {
		if IsLinkURL(k.URL) {
			k.URL = strings.TrimSpace(k.URL)
			out = append(out, k)
		}
	}
	return out
}

// Metadata is the off-chain token description referenced by token_uri.
// It is transient: fetched per record, never cached.
type Metadata struct {
	Name        string
	Symbol      string
	Description string
	Image       string
	Links       Links
}

// Empty reports whether no display field was decoded.
func (m *Metadata) Empty() bool {
	if m == nil {
		return true
	}
	return m.Name == "" && m.Symbol == "" && m.Description == "" && m.Image == "" && len(m.Links.Ordered()) == 0
}
