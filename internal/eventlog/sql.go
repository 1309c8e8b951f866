package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cjeanneret/babycam/internal/debug"
)

// eventRow is the SQL representation of an Event.
type eventRow struct {
	ID          uint           `gorm:"primarykey"`
	EventID     string         `gorm:"uniqueIndex;size:64"`
	Timestamp   time.Time      `gorm:"index"`
	Type        string         `gorm:"index;size:64"`
	Data        datatypes.JSON `gorm:"default:'{}'"`
	Environment datatypes.JSON `gorm:"default:'{}'"`
}

func (eventRow) TableName() string { return "events" }

// SQLStore keeps events in a SQLite database.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) the database at path. An empty path
// uses a private in-memory database.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open sqlite %s: %w", dsn, err)
	}
	if path == "" {
		// Each new connection to :memory: is a fresh database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("eventlog: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&eventRow{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	log := debug.Logger("eventlog")
	log.Debug().Str("path", dsn).Msg("using SQLite event log")
	return &SQLStore{db: db}, nil
}

// Append inserts e.
func (s *SQLStore) Append(ctx context.Context, e Event) error {
	row := eventRow{
		EventID:     e.EventID,
		Timestamp:   e.Timestamp,
		Type:        e.Type,
		Data:        datatypes.JSON(orEmptyObject(e.Data)),
		Environment: datatypes.JSON(orEmptyObject(e.Environment)),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		var n int64
		if s.db.WithContext(ctx).Model(&eventRow{}).Where("event_id = ?", e.EventID).Count(&n).Error == nil && n > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.EventID)
		}
		return fmt.Errorf("eventlog: insert %s: %w", e.EventID, err)
	}
	return nil
}

// List returns all events in insertion order.
func (s *SQLStore) List(ctx context.Context) ([]Event, error) {
	var rows []eventRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, Event{
			Timestamp:   r.Timestamp,
			EventID:     r.EventID,
			Type:        r.Type,
			Data:        json.RawMessage(r.Data),
			Environment: json.RawMessage(r.Environment),
		})
	}
	return events, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func orEmptyObject(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
