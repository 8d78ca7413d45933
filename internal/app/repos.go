package app

import (
	"gorm.io/gorm"

	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/repos"
)

type Repos struct {
	KBDocument  repos.KBDocumentRepo
	AnalysisJob repos.AnalysisJobRepo
	QueryRecord repos.QueryRecordRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		KBDocument:  repos.NewKBDocumentRepo(db, log),
		AnalysisJob: repos.NewAnalysisJobRepo(db, log),
		QueryRecord: repos.NewQueryRecordRepo(db, log),
	}
}
