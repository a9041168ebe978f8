package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/pnv/catalog-sync/internal/domain/shared"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
)

// ExportReader reads export configurations and their categories.
type ExportReader interface {
	ListConfigs(ctx context.Context) ([]taxonomy.ExportConfiguration, error)
	GetConfig(ctx context.Context, id string) (*taxonomy.ExportConfiguration, error)
	ListEntries(ctx context.Context) ([]taxonomy.Entry, error)
	GetTaxonomy(ctx context.Context, exportID string) ([]taxonomy.Entry, error)
}

// ExportHandler serves export configurations and categories.
type ExportHandler struct {
	BaseHandler
	repo ExportReader
}

// NewExportHandler creates an export handler
func NewExportHandler(repo ExportReader) *ExportHandler {
	return &ExportHandler{repo: repo}
}

// ListExports handles GET /api/exports
func (h *ExportHandler) ListExports(c *gin.Context) {
	configs, err := h.repo.ListConfigs(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if configs == nil {
		configs = []taxonomy.ExportConfiguration{}
	}
	h.Success(c, configs)
}

// GetExport handles GET /api/exports/:id
func (h *ExportHandler) GetExport(c *gin.Context) {
	id := c.Param("id")
	cfg, err := h.repo.GetConfig(c.Request.Context(), id)
	if errors.Is(err, shared.ErrNotFound) || (err == nil && cfg == nil) {
		h.NotFound(c, fmt.Sprintf("export with id %s not found", id))
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// ListCategories handles GET /api/categories
func (h *ExportHandler) ListCategories(c *gin.Context) {
	entries, err := h.repo.ListEntries(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, nonNilEntries(entries))
}

// CategoriesByExport handles GET /api/categories/by-export/:exportId
func (h *ExportHandler) CategoriesByExport(c *gin.Context) {
	entries, err := h.repo.GetTaxonomy(c.Request.Context(), c.Param("exportId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, nonNilEntries(entries))
}

func nonNilEntries(entries []taxonomy.Entry) []taxonomy.Entry {
	if entries == nil {
		return []taxonomy.Entry{}
	}
	return entries
}

// RegisterRoutes mounts the export and category endpoints under rg.
func (h *ExportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/exports", h.ListExports)
	rg.GET("/exports/:id", h.GetExport)
	rg.GET("/categories", h.ListCategories)
	rg.GET("/categories/by-export/:exportId", h.CategoriesByExport)
}
