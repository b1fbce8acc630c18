package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockingUpdate applies SELECT ... FOR UPDATE row locking. SQLite has no
// row-level locks and rejects the clause, but serialises writers at the
// connection level, so it is skipped there.
func LockingUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
