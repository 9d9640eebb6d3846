package seeders

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/pkg/auth"
)

func init() {
	Register("users", SeedUsers)
	Register("products", SeedProducts)
}

type demoUser struct {
	name, email, password, role string
}

var demoUsers = []demoUser{
	{"Store Admin", "admin@bunkar.local", "admin12345", auth.RoleAdmin},
	{"Sales Desk", "sales@bunkar.local", "sales12345", auth.RoleSalesperson},
	{"Demo Customer", "customer@bunkar.local", "customer123", auth.RoleUser},
}

// SeedUsers creates one account per role.
func SeedUsers(ctx context.Context, db *gorm.DB) error {
	for _, u := range demoUsers {
		err := db.WithContext(ctx).Where("email = ?", u.email).First(&models.User{}).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		hash, err := auth.HashPassword(u.password)
		if err != nil {
			return err
		}
		user := models.User{Name: u.name, Email: u.email, PasswordHash: &hash, Role: u.role}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
	}
	return nil
}

func count(n int) *int { return &n }

var demoProducts = []models.Product{
	{Name: "Dhakai Muslin Stole", Description: "Featherweight 300-count muslin, hand spun.", Price: decimal.RequireFromString("4500.00"), FabricType: models.FabricMuslin, FabricCount: count(300), Stock: 8, Featured: true},
	{Name: "Rajshahi Silk Saree", Description: "Mulberry silk saree with zari border.", Price: decimal.RequireFromString("12500.00"), FabricType: models.FabricSilkSaree, Stock: 5, Featured: true},
	{Name: "Silk Than, Ivory", Description: "Unstitched silk yardage, sold per than.", Price: decimal.RequireFromString("7800.00"), FabricType: models.FabricSilkThan, Stock: 12},
	{Name: "Jamdani Saree, Indigo", Description: "Supplementary-weft jamdani on fine cotton.", Price: decimal.RequireFromString("9800.00"), FabricType: models.FabricJamdani, FabricCount: count(100), Stock: 4, Featured: true},
	{Name: "Tangail Cotton Saree", Description: "Everyday handloom cotton saree.", Price: decimal.RequireFromString("1200.00"), FabricType: models.FabricCottonSaree, FabricCount: count(80), Stock: 30},
	{Name: "Khadi Kurta Fabric", Description: "Hand spun, hand woven khadi, 2.5m cut.", Price: decimal.RequireFromString("950.00"), FabricType: models.FabricKhadi, Stock: 40},
}

// SeedProducts adds the demo catalog, skipping names that already exist.
func SeedProducts(ctx context.Context, db *gorm.DB) error {
	for _, p := range demoProducts {
		var existing int64
		if err := db.WithContext(ctx).Model(&models.Product{}).Where("name = ?", p.Name).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			continue
		}
		prod := p
		if err := db.WithContext(ctx).Create(&prod).Error; err != nil {
			return err
		}
	}
	return nil
}
