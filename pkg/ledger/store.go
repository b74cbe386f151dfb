package ledger

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/ethpandaops/dumpoor/pkg/upload"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists the upload history.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Record stores the outcome of a finished session.
	Record(ctx context.Context, res *upload.Result) (*Attempt, error)

	// List returns the most recent attempts, newest first. A limit of zero
	// or less returns every attempt.
	List(ctx context.Context, limit int) ([]Attempt, error)

	// ListByFile returns every attempt for a dump path, oldest first.
	ListByFile(ctx context.Context, file string) ([]Attempt, error)
}

var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.LedgerConfig
	db  *gorm.DB
}

// NewStore creates a Store backed by the configured database driver.
func NewStore(log logrus.FieldLogger, cfg *config.LedgerConfig) Store {
	return &store{
		log: log.WithField("component", "ledger"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// Every sqlite connection to ":memory:" is a separate database.
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&Attempt{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Ledger connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) Record(ctx context.Context, res *upload.Result) (*Attempt, error) {
	attempt := attemptFromResult(res)

	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, fmt.Errorf("recording attempt: %w", err)
	}

	return attempt, nil
}

func (s *store) List(ctx context.Context, limit int) ([]Attempt, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var attempts []Attempt
	if err := q.Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}

	return attempts, nil
}

func (s *store) ListByFile(ctx context.Context, file string) ([]Attempt, error) {
	var attempts []Attempt
	if err := s.db.WithContext(ctx).
		Where("file = ?", file).
		Order("id ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("listing attempts by file: %w", err)
	}

	return attempts, nil
}

func attemptFromResult(res *upload.Result) *Attempt {
	attempt := &Attempt{
		File:         res.File,
		Transport:    res.Transport,
		Endpoint:     res.Endpoint,
		Status:       string(res.Status),
		RemoteStatus: res.RemoteStatus,
		BytesSent:    res.BytesSent,
		BytesTotal:   res.BytesTotal,
		Duration:     res.Duration,
		Answer:       truncate(string(res.Body), maxAnswerLength),
		Deleted:      res.Deleted,
		StartedAt:    res.StartedAt,
	}

	if res.Code != upload.CodeNone {
		attempt.Code = res.Code.String()
	}

	if res.Err != nil {
		attempt.Error = res.Err.Error()
	}

	return attempt
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}

	return s
}
