package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/wallbox-server/internal/health"
)

// NewHealthAggregator 数据库与 CSMS 凭据检查；Redis 在连接成功后追加
func NewHealthAggregator(dbpool *pgxpool.Pool, schemaHead int64, csmsConfigured func() bool) *health.Aggregator {
	return health.NewAggregator(
		health.NewDatabaseChecker(dbpool, schemaHead),
		health.NewCSMSChecker(csmsConfigured),
	)
}
