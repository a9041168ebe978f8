package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/shared"
	"github.com/pnv/catalog-sync/internal/interfaces/http/dto"
)

// ProductReader is the read side of the catalog.
type ProductReader interface {
	FindAll(ctx context.Context) ([]product.CatalogRecord, error)
	FindByCode(ctx context.Context, code string) (*product.CatalogRecord, error)
}

// ProductHandler serves catalog products.
type ProductHandler struct {
	BaseHandler
	catalog ProductReader
}

// NewProductHandler creates a product handler
func NewProductHandler(catalog ProductReader) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

// List handles GET /api/products
func (h *ProductHandler) List(c *gin.Context) {
	records, err := h.catalog.FindAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if records == nil {
		records = []product.CatalogRecord{}
	}
	h.Success(c, records)
}

// Get handles GET /api/products/:code. A child code resolves to its parent.
func (h *ProductHandler) Get(c *gin.Context) {
	code := c.Param("code")
	rec, err := h.catalog.FindByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, fmt.Sprintf("product with code %s not found", code))
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Success(c, rec)
}

// Category handles GET /api/products/:code/category?exportId=
func (h *ProductHandler) Category(c *gin.Context) {
	code := c.Param("code")
	exportID := c.Query("exportId")
	if exportID == "" {
		h.BadRequest(c, "exportId is required")
		return
	}

	rec, err := h.catalog.FindByCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, fmt.Sprintf("product with code %s not found", code))
			return
		}
		h.HandleError(c, err)
		return
	}
	cat, ok := rec.CategoryFor(exportID)
	if !ok {
		h.NotFound(c, fmt.Sprintf("product %s has no category for export %s", code, exportID))
		return
	}
	h.Success(c, dto.NewProductCategoryResponse(rec.Code(), cat))
}

// ExportTSV handles GET /api/products/export.tsv?exportId=
func (h *ProductHandler) ExportTSV(c *gin.Context) {
	exportID := c.Query("exportId")
	if exportID == "" {
		h.BadRequest(c, "exportId is required")
		return
	}
	records, err := h.catalog.FindAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="products.tsv"`)
	c.Data(http.StatusOK, "text/tab-separated-values; charset=utf-8", []byte(ProductsTSV(records, exportID)))
}

// ProductsTSV renders one "name<TAB>category" line per record under the
// Naziv/Kategorija header. Records without a category for exportID get an
// empty category. Tabs and newlines inside values become spaces.
func ProductsTSV(records []product.CatalogRecord, exportID string) string {
	var b strings.Builder
	b.WriteString("Naziv\tKategorija")
	for _, r := range records {
		name := r.Name()
		var category string
		if cat, ok := r.CategoryFor(exportID); ok {
			category = cat.CategoryName
		}
		b.WriteByte('\n')
		b.WriteString(tsvCell(name))
		b.WriteByte('\t')
		b.WriteString(tsvCell(category))
	}
	return b.String()
}

var tsvReplacer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

func tsvCell(s string) string {
	return tsvReplacer.Replace(s)
}

// RegisterRoutes mounts the product endpoints under rg.
func (h *ProductHandler) RegisterRoutes(rg *gin.RouterGroup) {
	products := rg.Group("/products")
	products.GET("", h.List)
	products.GET("/export.tsv", h.ExportTSV)
	products.GET("/:code", h.Get)
	products.GET("/:code/category", h.Category)
}
