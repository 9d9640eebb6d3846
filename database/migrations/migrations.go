// Package migrations registers the storefront schema. Import it for its
// side effect before running a migration.Runner.
package migrations

import (
	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/pkg/migration"
	"github.com/shashiranjanraj/bunkar/pkg/queue"
)

func init() {
	migration.Register("20260101000000_create_users_table", &createTables{models: []any{&models.User{}}})
	migration.Register("20260101000001_create_products_table", &createTables{models: []any{&models.Product{}}})
	migration.Register("20260101000002_create_orders_tables", &createTables{models: []any{&models.Order{}, &models.OrderItem{}}})
	migration.Register("20260101000003_create_contact_messages_table", &createTables{models: []any{&models.ContactMessage{}}})
	migration.Register("20260101000004_create_failed_jobs_table", &createTables{models: []any{&queue.FailedJobRecord{}}})
}

// createTables creates its models' tables on Up and drops them in reverse
// on Down.
type createTables struct {
	models []any
}

func (m *createTables) Up(db *gorm.DB) error {
	return db.AutoMigrate(m.models...)
}

func (m *createTables) Down(db *gorm.DB) error {
	for i := len(m.models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(m.models[i]); err != nil {
			return err
		}
	}
	return nil
}
