package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Pool sizes the database/sql pool behind a GormStorage. The queue and the
// state store each write a whole document per mutation, so one connection
// is enough and keeps SQLite free of SQLITE_BUSY between writers.
type Pool struct {
	OpenConns int
	IdleConns int
	Lifetime  time.Duration // 0 keeps connections forever
	IdleTime  time.Duration // 0 keeps idle connections forever
}

// DefaultPool returns a single long-lived connection. An in-memory SQLite
// database exists only as long as its connection, so nothing is recycled.
func DefaultPool() Pool {
	return Pool{OpenConns: 1, IdleConns: 1}
}

// PoolOption adjusts a Pool.
type PoolOption func(*Pool)

// MaxOpenConns caps open connections. Values below 1 are raised to 1.
func MaxOpenConns(n int) PoolOption {
	return func(p *Pool) { p.OpenConns = n }
}

// MaxIdleConns caps idle connections; it never exceeds the open cap.
func MaxIdleConns(n int) PoolOption {
	return func(p *Pool) { p.IdleConns = n }
}

// ConnMaxLifetime recycles connections older than d.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return func(p *Pool) { p.Lifetime = d }
}

// ConnMaxIdleTime closes connections idle for longer than d.
func ConnMaxIdleTime(d time.Duration) PoolOption {
	return func(p *Pool) { p.IdleTime = d }
}

func newPool(opts ...PoolOption) Pool {
	p := DefaultPool()
	for _, opt := range opts {
		opt(&p)
	}
	if p.OpenConns < 1 {
		p.OpenConns = 1
	}
	if p.IdleConns > p.OpenConns {
		p.IdleConns = p.OpenConns
	}
	return p
}

// TunePool applies the pool settings to db.
func TunePool(db *gorm.DB, opts ...PoolOption) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("tune pool: %w", err)
	}
	p := newPool(opts...)
	sqlDB.SetMaxOpenConns(p.OpenConns)
	sqlDB.SetMaxIdleConns(p.IdleConns)
	sqlDB.SetConnMaxLifetime(p.Lifetime)
	sqlDB.SetConnMaxIdleTime(p.IdleTime)
	return nil
}

// NewPooledGormStorage tunes db's pool and wraps it in a GormStorage.
func NewPooledGormStorage(db *gorm.DB, opts ...PoolOption) (*GormStorage, error) {
	if err := TunePool(db, opts...); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
