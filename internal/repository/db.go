package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX 数据库执行接口，*sql.DB 和 *sql.Tx 都满足
// 仓库默认持有 *sql.DB，评估临界区内通过 WithTx 切换到事务
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// KeyedLocker 基于 PostgreSQL 事务级咨询锁的按键临界区
// 同一 key 的回调在所有实例间串行执行，事务结束锁自动释放
type KeyedLocker struct {
	db *sql.DB
}

// NewKeyedLocker 创建按键锁
func NewKeyedLocker(db *sql.DB) *KeyedLocker {
	return &KeyedLocker{db: db}
}

// WithLock 在持有 key 对应咨询锁的事务内执行 fn
// fn 返回错误时回滚，否则提交
func (l *KeyedLocker) WithLock(ctx context.Context, key string, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to acquire advisory lock for key %s: %w", key, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
