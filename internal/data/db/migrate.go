package db

import (
	"gorm.io/gorm"

	"github.com/complyra/complyra-backend/internal/types"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Knowledge base
		&types.KBDocument{},

		// Analysis jobs
		&types.AnalysisJob{},

		// Query history
		&types.QueryRecord{},
	)
}
