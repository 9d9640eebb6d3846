// Package orm wraps a gorm handle in a small chainable query builder with
// a read-through Redis cache.
//
//	var out []models.Product
//	err := orm.On(db).WithContext(ctx).Model(&models.Product{}).
//	    Where("fabric_type = ?", "MUSLIN").
//	    Order("created_at DESC").
//	    Cache(ctx, "catalog:v3:muslin", time.Minute, &out)
package orm

import (
	"context"
	"time"

	"github.com/shashiranjanraj/bunkar/pkg/cache"
	"github.com/shashiranjanraj/bunkar/pkg/metrics"
	"gorm.io/gorm"
)

type Query struct {
	db *gorm.DB
}

// On starts a query on db.
func On(db *gorm.DB) *Query {
	return &Query{db: db}
}

func (q *Query) WithContext(ctx context.Context) *Query {
	return &Query{db: q.db.WithContext(ctx)}
}

func (q *Query) Model(v interface{}) *Query {
	return &Query{db: q.db.Model(v)}
}

func (q *Query) Where(query string, args ...interface{}) *Query {
	return &Query{db: q.db.Where(query, args...)}
}

// WhereIf applies the condition only when ok is true.
func (q *Query) WhereIf(ok bool, query string, args ...interface{}) *Query {
	if !ok {
		return q
	}
	return q.Where(query, args...)
}

func (q *Query) Order(value string) *Query {
	return &Query{db: q.db.Order(value)}
}

func (q *Query) Preload(query string, args ...interface{}) *Query {
	return &Query{db: q.db.Preload(query, args...)}
}

// DB exposes the underlying handle for anything the builder does not cover.
func (q *Query) DB() *gorm.DB { return q.db }

func (q *Query) Get(dest interface{}) error {
	return q.db.Find(dest).Error
}

func (q *Query) First(dest interface{}) error {
	return q.db.First(dest).Error
}

// Cache serves dest from Redis under key, or runs the query and stores the
// result for ttl. Cache write failures are ignored.
func (q *Query) Cache(ctx context.Context, key string, ttl time.Duration, dest interface{}) error {
	if cache.Get(ctx, key, dest) {
		metrics.CacheHits.WithLabelValues("query").Inc()
		return nil
	}
	metrics.CacheMisses.WithLabelValues("query").Inc()

	if err := q.db.Find(dest).Error; err != nil {
		return err
	}

	_ = cache.Set(ctx, key, dest, ttl)
	return nil
}
