package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestDefaultPool_SingleWriter(t *testing.T) {
	p := DefaultPool()
	assert.Equal(t, Pool{OpenConns: 1, IdleConns: 1}, p)
}

func TestNewPool(t *testing.T) {
	p := newPool(
		MaxOpenConns(4),
		MaxIdleConns(2),
		ConnMaxLifetime(10*time.Minute),
		ConnMaxIdleTime(2*time.Minute),
	)
	assert.Equal(t, Pool{OpenConns: 4, IdleConns: 2, Lifetime: 10 * time.Minute, IdleTime: 2 * time.Minute}, p)
}

func TestNewPool_Clamps(t *testing.T) {
	p := newPool(MaxOpenConns(0), MaxIdleConns(5))
	assert.Equal(t, 1, p.OpenConns)
	assert.Equal(t, 1, p.IdleConns)
}

func TestTunePool(t *testing.T) {
	db := openMemoryDB(t)
	require.NoError(t, TunePool(db, MaxOpenConns(3)))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)
}

func TestNewPooledGormStorage_DefaultsToOneConnection(t *testing.T) {
	db := openMemoryDB(t)
	s, err := NewPooledGormStorage(db)
	require.NoError(t, err)
	require.NotNil(t, s)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}
