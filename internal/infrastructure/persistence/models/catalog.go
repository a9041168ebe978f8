package models

import (
	"time"

	"github.com/pnv/catalog-sync/internal/domain/product"
)

// CatalogProductModel is one parent product of the catalog.
// Rows are never deleted; Active=false marks a product missing from the latest export.
type CatalogProductModel struct {
	Code          string               `gorm:"type:varchar(100);primaryKey"`
	ProductName   string               `gorm:"type:varchar(500);index"`
	Fields        map[string]any       `gorm:"type:jsonb;serializer:json"`
	StockAmount   int64                `gorm:"not null;default:0"`
	Pricelist     []product.PriceEntry `gorm:"type:jsonb;serializer:json"`
	ChildProducts []product.Record     `gorm:"type:jsonb;serializer:json"`
	Active        bool                 `gorm:"not null;default:true;index"`
	CreatedAt     time.Time            `gorm:"not null;autoCreateTime:false"`
	UpdatedAt     time.Time            `gorm:"not null;autoUpdateTime:false"`
}

// TableName returns the table name for the model
func (CatalogProductModel) TableName() string {
	return "catalog_products"
}

// ToDomain converts the model to a catalog record without AI categories.
func (m *CatalogProductModel) ToDomain() product.CatalogRecord {
	fields := make(product.Fields, len(m.Fields))
	for k, v := range m.Fields {
		fields[k] = v
	}
	pricelist := m.Pricelist
	if pricelist == nil {
		pricelist = []product.PriceEntry{}
	}
	children := m.ChildProducts
	if children == nil {
		children = []product.Record{}
	}
	return product.CatalogRecord{
		Record: product.Record{
			Fields:        fields,
			StockAmount:   m.StockAmount,
			Pricelist:     pricelist,
			ChildProducts: children,
		},
		Active:       m.Active,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		AICategories: []product.AICategory{},
	}
}

// CatalogProductModelFromDomain builds an active model from a parent record.
func CatalogProductModelFromDomain(r product.Record, now time.Time) *CatalogProductModel {
	children := r.ChildProducts
	if children == nil {
		children = []product.Record{}
	}
	pricelist := r.Pricelist
	if pricelist == nil {
		pricelist = []product.PriceEntry{}
	}
	return &CatalogProductModel{
		Code:          r.Code(),
		ProductName:   r.Name(),
		Fields:        map[string]any(r.Fields),
		StockAmount:   r.StockAmount,
		Pricelist:     pricelist,
		ChildProducts: children,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CatalogChildModel indexes child codes so a product can be found by any of its variants.
type CatalogChildModel struct {
	ParentCode string `gorm:"type:varchar(100);primaryKey"`
	Code       string `gorm:"type:varchar(100);primaryKey;index"`
	Position   int    `gorm:"not null;default:0"`
}

// TableName returns the table name for the model
func (CatalogChildModel) TableName() string {
	return "catalog_product_children"
}

// ProductAICategoryModel is one classification of a product for an export configuration.
type ProductAICategoryModel struct {
	ProductCode  string    `gorm:"type:varchar(100);primaryKey"`
	ExportID     string    `gorm:"type:varchar(100);primaryKey;index"`
	CategoryID   string    `gorm:"type:varchar(100);not null"`
	CategoryName string    `gorm:"type:varchar(500);not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for the model
func (ProductAICategoryModel) TableName() string {
	return "product_ai_categories"
}

// ToDomain converts the model to a domain AI category
func (m *ProductAICategoryModel) ToDomain() product.AICategory {
	return product.AICategory{
		ExportID:     m.ExportID,
		CategoryID:   m.CategoryID,
		CategoryName: m.CategoryName,
	}
}
