// Package migration runs versioned schema changes and tracks them in the
// bunkar_migrations table.
//
//	func init() {
//	    migration.Register("20260101000001_create_products_table", &CreateProductsTable{})
//	}
//
// Migrations run in name order, so names start with a timestamp. Every
// call to Run is one batch; Rollback reverses the latest batch.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
)

// Migration is one reversible schema change.
type Migration interface {
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

type record struct {
	ID    uint      `gorm:"primaryKey;autoIncrement"`
	Name  string    `gorm:"uniqueIndex;size:255;not null"`
	Batch int       `gorm:"not null"`
	RunAt time.Time `gorm:"autoCreateTime"`
}

func (record) TableName() string { return "bunkar_migrations" }

type registered struct {
	name string
	m    Migration
}

var (
	mu       sync.RWMutex
	registry []registered
)

// Register adds a migration. Registering a name twice panics.
func Register(name string, m Migration) {
	mu.Lock()
	defer mu.Unlock()
	for _, r := range registry {
		if r.name == name {
			panic("migration: duplicate name " + name)
		}
	}
	registry = append(registry, registered{name: name, m: m})
}

func sorted() []registered {
	mu.RLock()
	out := make([]registered, len(registry))
	copy(out, registry)
	mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Status is the state of one registered migration.
type Status struct {
	Name  string
	Ran   bool
	Batch int
}

// Runner executes and tracks migrations against one database.
type Runner struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Runner {
	return &Runner{db: db}
}

func (r *Runner) ensureTable(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&record{}); err != nil {
		return fmt.Errorf("migration: ensure table: %w", err)
	}
	return nil
}

func (r *Runner) ran(ctx context.Context) (map[string]record, error) {
	var rows []record
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("migration: read table: %w", err)
	}
	out := make(map[string]record, len(rows))
	for _, row := range rows {
		out[row.Name] = row
	}
	return out, nil
}

func (r *Runner) lastBatch(ctx context.Context) (int, error) {
	var last struct{ Max int }
	err := r.db.WithContext(ctx).Model(&record{}).Select("COALESCE(MAX(batch), 0) AS max").Scan(&last).Error
	return last.Max, err
}

// Run applies every pending migration as one batch and returns the names
// it applied.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := r.ran(ctx)
	if err != nil {
		return nil, err
	}
	last, err := r.lastBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration: batch: %w", err)
	}
	batch := last + 1

	var applied []string
	for _, reg := range sorted() {
		if _, ok := done[reg.name]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		logger.WithCtx(ctx).Info("migration: running", "name", reg.name)
		if err := reg.m.Up(r.db.WithContext(ctx)); err != nil {
			return applied, fmt.Errorf("migration: %s up: %w", reg.name, err)
		}
		if err := r.db.WithContext(ctx).Create(&record{Name: reg.name, Batch: batch}).Error; err != nil {
			return applied, fmt.Errorf("migration: record %s: %w", reg.name, err)
		}
		applied = append(applied, reg.name)
	}

	if len(applied) > 0 {
		logger.WithCtx(ctx).Info("migration: done", "ran", len(applied), "batch", batch)
	}
	return applied, nil
}

// Rollback reverses the latest batch, newest first, and returns the names
// it reverted.
func (r *Runner) Rollback(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	last, err := r.lastBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration: batch: %w", err)
	}
	if last == 0 {
		return nil, nil
	}

	var rows []record
	if err := r.db.WithContext(ctx).Where("batch = ?", last).Order("name DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("migration: read batch: %w", err)
	}

	known := make(map[string]Migration)
	for _, reg := range sorted() {
		known[reg.name] = reg.m
	}

	var reverted []string
	for _, row := range rows {
		m, ok := known[row.Name]
		if !ok {
			return reverted, fmt.Errorf("migration: %s is not registered: %w", row.Name, ErrUnknown)
		}
		logger.WithCtx(ctx).Info("migration: rolling back", "name", row.Name)
		if err := m.Down(r.db.WithContext(ctx)); err != nil {
			return reverted, fmt.Errorf("migration: %s down: %w", row.Name, err)
		}
		if err := r.db.WithContext(ctx).Delete(&row).Error; err != nil {
			return reverted, fmt.Errorf("migration: forget %s: %w", row.Name, err)
		}
		reverted = append(reverted, row.Name)
	}
	return reverted, nil
}

// Status lists every registered migration in run order.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := r.ran(ctx)
	if err != nil {
		return nil, err
	}
	var out []Status
	for _, reg := range sorted() {
		row, ok := done[reg.name]
		out = append(out, Status{Name: reg.name, Ran: ok, Batch: row.Batch})
	}
	return out, nil
}

// ErrUnknown is returned when the table names a migration this binary
// does not know.
var ErrUnknown = errors.New("migration: unknown migration")
