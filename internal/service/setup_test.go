package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-appgrader/internal/dto"
	"github.com/noah-isme/gema-appgrader/internal/models"
	"github.com/noah-isme/gema-appgrader/internal/repository"
)

var fixedNow = time.Date(2025, time.March, 3, 9, 15, 0, 0, time.UTC)

func setupStore(t *testing.T) (*gorm.DB, repository.Store) {
	t.Helper()

	dsn := fmt.Sprintf("file:service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db, repository.NewStore(db)
}

type deliveryCall struct {
	Endpoint string
	Payload  dto.TaskPayload
}

type stubDeliverer struct {
	mu       sync.Mutex
	statuses []int
	err      error
	calls    []deliveryCall
}

func (d *stubDeliverer) Post(_ context.Context, endpoint string, payload interface{}) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, deliveryCall{Endpoint: endpoint, Payload: payload.(dto.TaskPayload)})
	if d.err != nil {
		return 0, d.err
	}
	if len(d.statuses) == 0 {
		return 200, nil
	}
	status := d.statuses[0]
	if len(d.statuses) > 1 {
		d.statuses = d.statuses[1:]
	}
	return status, nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return nil
}

func sequentialNonces() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("nonce-%d", n)
	}
}

func intPtr(v int) *int {
	return &v
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
