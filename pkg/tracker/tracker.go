package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Usage is one advisory record of a call to an external generation
// service.
type Usage struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time

	Service   string  `gorm:"index;not null;default:''"`
	Endpoint  string  `gorm:"not null;default:''"`
	Cost      float64 `gorm:"not null;default:0"`
	SessionID string  `gorm:"index;not null;default:''"`
	Success   bool
	Error     string `gorm:"not null;default:''"`
}

// Recorder receives usage records. Recording is advisory telemetry: a
// failing recorder must never affect the pipeline outcome, so Record
// returns nothing.
type Recorder interface {
	Record(ctx context.Context, u *Usage)
}

// NopRecorder discards all records.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Usage) {}

// Store is a gorm backed usage ledger.
type Store struct {
	open   gorm.Dialector
	db     *gorm.DB
	logger logger.Interface
}

func New(dbType, dbConn string, debug bool) (*Store, error) {
	var open gorm.Dialector
	switch dbType {
	case "postgres":
		open = postgres.Open(dbConn)
	case "mysql":
		open = mysql.Open(dbConn)
	case "sqlite":
		open = sqlite.Open(dbConn)
	default:
		return nil, fmt.Errorf("tracker: unknown db type: %s", dbType)
	}
	l := logger.Default.LogMode(logger.Silent)
	if debug {
		l = logger.Default.LogMode(logger.Warn)
	}
	return &Store{
		open:   open,
		logger: l,
	}, nil
}

func (s *Store) Start(ctx context.Context) error {
	// Launch the database connection in a goroutine so we can timeout if it
	// takes too long.
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	errC := make(chan error, 1)
	defer close(errC)
	go func() {
		db, err := gorm.Open(s.open, &gorm.Config{
			Logger: s.logger,
		})
		if err != nil {
			errC <- fmt.Errorf("tracker: failed to open database: %w", err)
			return
		}
		s.db = db
		errC <- nil
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("tracker: timed out opening database: %w", ctx.Err())
		}
		return ctx.Err()
	case err := <-errC:
		if err != nil {
			return err
		}
	}
	if err := s.db.AutoMigrate(&Usage{}); err != nil {
		return fmt.Errorf("tracker: failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, u *Usage) {
	if u.ID == "" {
		u.ID = ulid.Make().String()
	}
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		log.Printf("tracker: failed to record usage %s %s: %v\n", u.Service, u.Endpoint, err)
	}
}

// ServiceStats aggregates the ledger per service.
type ServiceStats struct {
	Service     string
	TotalCalls  int64
	TotalCost   float64
	FailedCalls int64
}

func (s *Store) Stats(ctx context.Context, days int) ([]ServiceStats, error) {
	since := time.Now().AddDate(0, 0, -days)
	var stats []ServiceStats
	err := s.db.WithContext(ctx).Model(&Usage{}).
		Select("service, count(*) as total_calls, sum(cost) as total_cost, sum(case when success then 0 else 1 end) as failed_calls").
		Where("created_at >= ?", since).
		Group("service").
		Order("total_cost desc").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("tracker: failed to get stats: %w", err)
	}
	return stats, nil
}
