// Package catalog caches the reference data of games and their items.
package catalog

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"draw-engine/internal/model"
)

// Source is the authoritative store of games and items.
type Source interface {
	GetGame(ctx context.Context, id string) (*model.Game, error)
	GetItem(ctx context.Context, id string) (*model.GameItem, error)
	ListActiveItems(ctx context.Context, gameID string) ([]*model.GameItem, error)
}

// Catalog is a read-through cache over Source. Items are immutable once
// created, so entries only expire on TTL or Invalidate.
type Catalog struct {
	source Source
	cache  *cache.Cache
}

// New creates a Catalog whose entries live for ttl.
func New(source Source, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// Game returns a game by id.
func (c *Catalog) Game(ctx context.Context, id string) (*model.Game, error) {
	key := "game:" + id
	if v, found := c.cache.Get(key); found {
		return v.(*model.Game), nil
	}
	g, err := c.source.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, g, cache.DefaultExpiration)
	return g, nil
}

// Item returns a game item by id.
func (c *Catalog) Item(ctx context.Context, id string) (*model.GameItem, error) {
	key := "item:" + id
	if v, found := c.cache.Get(key); found {
		return v.(*model.GameItem), nil
	}
	it, err := c.source.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, it, cache.DefaultExpiration)
	return it, nil
}

// ActiveItems returns the active items of a game in display order.
func (c *Catalog) ActiveItems(ctx context.Context, gameID string) ([]*model.GameItem, error) {
	key := "items:" + gameID
	if v, found := c.cache.Get(key); found {
		return v.([]*model.GameItem), nil
	}
	items, err := c.source.ListActiveItems(ctx, gameID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, items, cache.DefaultExpiration)
	for _, it := range items {
		c.cache.Set("item:"+it.ID, it, cache.DefaultExpiration)
	}
	return items, nil
}

// Invalidate drops every cached entry of a game.
func (c *Catalog) Invalidate(gameID string) {
	c.cache.Delete("game:" + gameID)
	if v, found := c.cache.Get("items:" + gameID); found {
		for _, it := range v.([]*model.GameItem) {
			c.cache.Delete("item:" + it.ID)
		}
	}
	c.cache.Delete("items:" + gameID)
}

// Flush empties the cache.
func (c *Catalog) Flush() {
	c.cache.Flush()
}
