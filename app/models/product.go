package models

import "github.com/shopspring/decimal"

// FabricType classifies a textile.
type FabricType string

const (
	FabricMuslin      FabricType = "MUSLIN"
	FabricSilkSaree   FabricType = "SILK_SAREE"
	FabricSilkThan    FabricType = "SILK_THAN"
	FabricJamdani     FabricType = "JAMDANI"
	FabricCottonSaree FabricType = "COTTON_SAREE"
	FabricKhadi       FabricType = "KHADI"
)

// FabricTypes lists every known fabric type in display order.
var FabricTypes = []FabricType{
	FabricMuslin, FabricSilkSaree, FabricSilkThan, FabricJamdani, FabricCottonSaree, FabricKhadi,
}

func (f FabricType) Valid() bool {
	for _, t := range FabricTypes {
		if t == f {
			return true
		}
	}
	return false
}

// Product is a catalog entry. Stock and price are never negative.
type Product struct {
	Base
	Name        string          `gorm:"size:255;not null;index" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	FabricType  FabricType      `gorm:"size:32;not null;index" json:"fabric_type"`
	FabricCount *int            `json:"fabric_count,omitempty"`
	Stock       int             `gorm:"not null;default:0" json:"stock"`
	Images      StringList      `gorm:"type:text" json:"images"`
	Featured    bool            `gorm:"not null;default:false;index" json:"featured"`
}

// InStock reports whether qty units can be sold.
func (p *Product) InStock(qty int) bool {
	return qty > 0 && p.Stock >= qty
}
