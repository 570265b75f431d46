// Package dbtest 为各上下文的测试提供内存 SQLite 数据库
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/wyfcoding/storefront/pkg/db"
)

var seq atomic.Int64

// New 打开一个独立的内存数据库并迁移给定模型。
// 只保留一个连接，并发事务在连接池处串行化。
func New(t testing.TB, models ...any) *db.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:storefront_test_%d?mode=memory&cache=shared&_busy_timeout=5000", seq.Add(1))
	database, err := db.Init(db.Config{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}
