// Package esi talks to the official EVE Swagger Interface: killmail details
// and entity name lookups.
package esi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/killsync/internal/adapters/fetch"
	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
)

// DefaultBaseURL is the public ESI host.
const DefaultBaseURL = "https://esi.evetech.net"

// Getter fetches and decodes a JSON document. *fetch.Client implements it.
type Getter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// Client builds ESI URLs and fetches documents through a Getter.
type Client struct {
	get     Getter
	baseURL string
	log     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the ESI host, e.g. for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Client.
func NewClient(get Getter, opts ...Option) *Client {
	c := &Client{get: get, baseURL: DefaultBaseURL, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns {base}/latest/{path...}/?datasource=tranquility.
func (c *Client) URL(path ...string) string {
	return c.baseURL + "/latest/" + strings.Join(path, "/") + "/?datasource=tranquility"
}

// Killmail fetches the full killmail detail for (id, hash).
func (c *Client) Killmail(ctx context.Context, id int64, hash string) (model.Detail, error) {
	var d model.Detail
	url := c.URL("killmails", strconv.FormatInt(id, 10), hash)
	if err := c.get.GetJSON(ctx, url, &d); err != nil {
		if errors.Is(err, fetch.ErrNotFound) {
			c.log.Info(ctx, "killmail detail not found", logger.Int64("killmail_id", id), logger.String("hash", hash))
		} else if ctx.Err() == nil {
			c.log.Warn(ctx, "killmail detail fetch failed",
				logger.Int64("killmail_id", id),
				logger.String("url", url),
				logger.Error(err))
		}
		return model.Detail{}, fmt.Errorf("esi: killmail %d: %w", id, err)
	}
	return d, nil
}
