package productsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pnv/catalog-sync/internal/domain/mapping"
	"github.com/pnv/catalog-sync/internal/domain/product"
	"go.uber.org/zap"
)

// OrphanPolicy decides what happens to child rows whose parent code never
// appears as a top-level row.
type OrphanPolicy string

const (
	// OrphanDrop discards orphans with a warning
	OrphanDrop OrphanPolicy = "drop"
	// OrphanPromote turns each orphan into a parent without children
	OrphanPromote OrphanPolicy = "promote"
	// OrphanError fails the build
	OrphanError OrphanPolicy = "error"
)

// ErrOrphanedChild is returned by Build under OrphanError.
var ErrOrphanedChild = errors.New("productsync: child references an unknown parent")

// ParseOrphanPolicy validates a configured policy name. "" selects drop.
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch p := OrphanPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return OrphanDrop, nil
	case OrphanDrop, OrphanPromote, OrphanError:
		return p, nil
	}
	return "", fmt.Errorf("productsync: unknown orphan policy %q", s)
}

// RowMapper turns one source row into a record.
type RowMapper interface {
	Map(ctx context.Context, row mapping.Row) (product.Record, error)
}

// HierarchyBuilder groups flat rows into parents with ordered children.
type HierarchyBuilder struct {
	ParentColumn string
	CodeColumn   string
	Policy       OrphanPolicy
	Logger       *zap.Logger
}

// NewHierarchyBuilder returns a builder for the PNV export columns.
func NewHierarchyBuilder(policy OrphanPolicy, logger *zap.Logger) *HierarchyBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HierarchyBuilder{
		ParentColumn: mapping.PNVParentColumn,
		CodeColumn:   mapping.PNVCodeColumn,
		Policy:       policy,
		Logger:       logger,
	}
}

// BuildResult is the output of one hierarchy build.
type BuildResult struct {
	Parents  []product.Record
	Rows     int
	Children int
	// Orphans lists the child codes whose parent was missing, in source order
	Orphans []string
}

// Build maps every row once. Children are mapped first and attached to their
// parent in source order; parents follow in source order with an empty child
// list when they have none. Parent and child rows are matched on the raw
// code and parent columns.
func (b *HierarchyBuilder) Build(ctx context.Context, rows []mapping.Row, mapper RowMapper) (BuildResult, error) {
	res := BuildResult{Rows: len(rows)}

	childrenByParent := make(map[string][]product.Record)
	var childOrder []string // parent codes in first-seen order
	for i, row := range rows {
		parentCode := row.Value(b.ParentColumn)
		if parentCode == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		child, err := mapper.Map(ctx, row)
		if err != nil {
			return res, fmt.Errorf("map child row %d (%s): %w", i+1, row.Value(b.CodeColumn), err)
		}
		child.ChildProducts = nil
		if _, seen := childrenByParent[parentCode]; !seen {
			childOrder = append(childOrder, parentCode)
		}
		childrenByParent[parentCode] = append(childrenByParent[parentCode], child)
		res.Children++
	}

	parentCodes := make(map[string]struct{})
	for i, row := range rows {
		if row.Value(b.ParentColumn) != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		parent, err := mapper.Map(ctx, row)
		if err != nil {
			return res, fmt.Errorf("map row %d (%s): %w", i+1, row.Value(b.CodeColumn), err)
		}
		code := row.Value(b.CodeColumn)
		parentCodes[code] = struct{}{}

		parent.ChildProducts = childrenByParent[code]
		if parent.ChildProducts == nil {
			parent.ChildProducts = []product.Record{}
		}
		if parent.Pricelist == nil {
			parent.Pricelist = []product.PriceEntry{}
		}
		res.Parents = append(res.Parents, parent)
	}

	var orphanParents []string
	for _, parentCode := range childOrder {
		if _, ok := parentCodes[parentCode]; ok {
			continue
		}
		orphanParents = append(orphanParents, parentCode)
		for _, child := range childrenByParent[parentCode] {
			res.Orphans = append(res.Orphans, child.Code())
		}
	}
	if len(res.Orphans) == 0 {
		return res, nil
	}

	switch b.Policy {
	case OrphanError:
		return res, fmt.Errorf("%w: %d children of %s", ErrOrphanedChild, len(res.Orphans), strings.Join(orphanParents, ", "))
	case OrphanPromote:
		for _, parentCode := range orphanParents {
			for _, child := range childrenByParent[parentCode] {
				child.ChildProducts = []product.Record{}
				if child.Pricelist == nil {
					child.Pricelist = []product.PriceEntry{}
				}
				res.Parents = append(res.Parents, child)
			}
		}
		res.Children -= len(res.Orphans)
		b.Logger.Warn("Promoted orphaned child products to parents",
			zap.Int("orphans", len(res.Orphans)),
			zap.Strings("missing_parents", orphanParents),
		)
	default:
		res.Children -= len(res.Orphans)
		b.Logger.Warn("Dropped orphaned child products",
			zap.Int("orphans", len(res.Orphans)),
			zap.Strings("missing_parents", orphanParents),
		)
	}
	return res, nil
}
