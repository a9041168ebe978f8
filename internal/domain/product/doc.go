// Package product contains the Catalog bounded context.
// It models the products imported from the PNV CMS export after they have
// been mapped, enriched with ERP stock and prices, and grouped into a
// parent/child hierarchy.
//
// Key concepts:
//   - Record: a mapped product (parent or child) with stock and pricelist
//   - CatalogRecord: the persisted parent with lifecycle fields and AI categories
//   - AICategory: one classification of a product for one export configuration
//   - CatalogRepository: port implemented by the persistence layer
package product
