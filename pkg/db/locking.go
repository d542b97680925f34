package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockForUpdate adds a FOR UPDATE row lock to the query. The sqlite driver
// used by package tests has no lock syntax and serializes writers itself,
// so the clause only applies on postgres.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector != nil && tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
