package esi

import (
	"context"
	"strconv"
	"strings"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/internal/domain/namecache"
	"github.com/okian/killsync/pkg/logger"
	"github.com/okian/killsync/pkg/metrics"
)

// EntityKind is the ESI path segment of a named entity.
type EntityKind string

// Entity kinds resolvable by name.
const (
	Characters   EntityKind = "characters"
	Corporations EntityKind = "corporations"
	Systems      EntityKind = "universe/systems"
	Types        EntityKind = "universe/types"
	Groups       EntityKind = "universe/groups"
)

// Resolver turns entity ids into display names. Lookups never fail: any
// problem degrades to model.Unknown.
type Resolver struct {
	client *Client
	cache  namecache.Cache
	log    logger.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache memoizes successful lookups.
func WithCache(c namecache.Cache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l logger.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver creates a Resolver on top of client.
func NewResolver(client *Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{client: client, log: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the display name of (kind, id).
func (r *Resolver) Name(ctx context.Context, kind EntityKind, id int64) string {
	if id == 0 {
		metrics.RecordEntityResolution(string(kind), "zero_id")
		return model.Unknown
	}
	id64 := strconv.FormatInt(id, 10)
	key := string(kind) + "/" + id64
	if r.cache != nil {
		if name, ok := r.cache.Get(ctx, key); ok {
			metrics.RecordEntityResolution(string(kind), "cache_hit")
			return name
		}
	}

	var doc struct {
		Name string `json:"name"`
	}
	if err := r.client.get.GetJSON(ctx, r.client.URL(string(kind), id64), &doc); err != nil {
		r.log.Warn(ctx, "entity lookup failed",
			logger.String("kind", string(kind)),
			logger.Int64("id", id),
			logger.Error(err))
		metrics.RecordEntityResolution(string(kind), "failed")
		return model.Unknown
	}
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		metrics.RecordEntityResolution(string(kind), "empty")
		return model.Unknown
	}
	if r.cache != nil {
		r.cache.Put(ctx, key, name)
	}
	metrics.RecordEntityResolution(string(kind), "resolved")
	return name
}

// ShipGroupName resolves a ship type to the name of its group
// (e.g. "Heavy Assault Cruiser").
func (r *Resolver) ShipGroupName(ctx context.Context, typeID int64) string {
	if typeID == 0 {
		return model.Unknown
	}
	var doc struct {
		GroupID model.ID `json:"group_id"`
	}
	if err := r.client.get.GetJSON(ctx, r.client.URL(string(Types), strconv.FormatInt(typeID, 10)), &doc); err != nil {
		r.log.Warn(ctx, "ship type lookup failed", logger.Int64("type_id", typeID), logger.Error(err))
		metrics.RecordEntityResolution("ship_group", "failed")
		return model.Unknown
	}
	if doc.GroupID == 0 {
		metrics.RecordEntityResolution("ship_group", "empty")
		return model.Unknown
	}
	return r.Name(ctx, Groups, int64(doc.GroupID))
}

// Character resolves a character id.
func (r *Resolver) Character(ctx context.Context, id int64) string { return r.Name(ctx, Characters, id) }

// Corporation resolves a corporation id.
func (r *Resolver) Corporation(ctx context.Context, id int64) string {
	return r.Name(ctx, Corporations, id)
}

// System resolves a solar system id.
func (r *Resolver) System(ctx context.Context, id int64) string { return r.Name(ctx, Systems, id) }

// ShipType resolves a type id to the hull name.
func (r *Resolver) ShipType(ctx context.Context, id int64) string { return r.Name(ctx, Types, id) }
