// Package zkb reads corporation killmail pages from zKillboard.
package zkb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/killsync/internal/adapters/fetch"
	"github.com/okian/killsync/internal/domain/model"
)

// DefaultBaseURL is the public zKillboard host.
const DefaultBaseURL = "https://zkillboard.com"

// Getter fetches and decodes a JSON document. *fetch.Client implements it.
type Getter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Client fetches feed pages.
type Client struct {
	get     Getter
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the zKillboard host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// NewClient creates a Client.
func NewClient(get Getter, opts ...Option) *Client {
	c := &Client{get: get, baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PageURL returns the URL of a 1-based corporation feed page.
func (c *Client) PageURL(corporationID string, page int) string {
	return fmt.Sprintf("%s/api/corporationID/%s/page/%d/", c.baseURL, corporationID, page)
}

// Page returns the entries of one corporation page, newest first. A page
// that does not exist is returned as empty. Each element is decoded on its
// own; elements that fail are returned in Malformed and never fail the page.
func (c *Client) Page(ctx context.Context, corporationID string, page int) (model.FeedPage, error) {
	var raw []json.RawMessage
	if err := c.get.GetJSON(ctx, c.PageURL(strings.TrimSpace(corporationID), page), &raw); err != nil {
		if errors.Is(err, fetch.ErrNotFound) {
			return model.FeedPage{}, nil
		}
		return model.FeedPage{}, fmt.Errorf("zkb: page %d: %w", page, err)
	}
	out := model.FeedPage{Entries: make([]model.FeedEntry, 0, len(raw))}
	for i, elem := range raw {
		var entry model.FeedEntry
		if err := json.Unmarshal(elem, &entry); err != nil {
			out.Malformed = append(out.Malformed, model.MalformedEntry{Index: i, Raw: string(elem), Err: err})
			continue
		}
		out.Entries = append(out.Entries, entry)
	}
	return out, nil
}
