package consumer

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const subscribePath = "/subscribe"

// ConnectionConfig is the subscription snapshot used to build the URL at
// connect time. The feed has no in-band reconfiguration, so changing it while
// connected means reconnecting.
type ConnectionConfig struct {
	Instance string `json:"instance"`
	// Scheme is "wss" unless a plain-text local instance is targeted.
	Scheme      string   `json:"scheme,omitempty"`
	Collections []string `json:"collections,omitempty"`
	// DIDs is bounded upstream (10k); no local limit is applied.
	DIDs     []string `json:"dids,omitempty"`
	Cursor   int64    `json:"cursor,omitempty"`
	Compress bool     `json:"compress,omitempty"`
}

// URL renders wss://<instance>/subscribe with repeated wantedCollections and
// wantedDids parameters, then cursor and compress. cursor <= 0 is omitted.
func (c ConnectionConfig) URL(cursor int64) string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "wss"
	}

	var q strings.Builder
	add := func(key, value string) {
		if q.Len() > 0 {
			q.WriteByte('&')
		}
		q.WriteString(key)
		q.WriteByte('=')
		q.WriteString(url.QueryEscape(value))
	}

	for _, col := range c.Collections {
		add("wantedCollections", col)
	}
	for _, did := range c.DIDs {
		add("wantedDids", did)
	}
	if cursor > 0 {
		add("cursor", strconv.FormatInt(cursor, 10))
	}
	if c.Compress {
		add("compress", "true")
	}

	u := scheme + "://" + c.Instance + subscribePath
	if q.Len() > 0 {
		u += "?" + q.String()
	}
	return u
}

// Clone returns a copy that shares no slices with c.
func (c ConnectionConfig) Clone() ConnectionConfig {
	c.Collections = slices.Clone(c.Collections)
	c.DIDs = slices.Clone(c.DIDs)
	return c
}

// ParseList splits a comma separated list, trimming blanks.
func ParseList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
