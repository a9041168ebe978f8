// Package models contains the GORM persistence models of the catalog service.
// Domain types stay free of GORM tags; repositories in the parent package
// convert between the two.
package models
