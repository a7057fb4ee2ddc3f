// Package sqlstore is the durable journal behind the in-memory gallery and
// ledger. Every mutation is written through after it succeeds in memory; on
// startup the journal is replayed to rebuild both.
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/rollcall/internal/domain/model"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Store persists identities and attendance records with gorm.
type Store struct {
	db     *gorm.DB
	closed atomic.Bool
}

// Open connects to dsn with driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s journal: %w", driver, err)
	}
	return New(db)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&identityRow{}, &attendanceRow{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.db.WithContext(ctx), nil
}

// identityUpserts are the columns a repeated save overwrites. deleted_at is
// not among them, so a removed identity stays removed.
var identityUpserts = []string{"display_name", "external_ref", "descriptor", "enrolled_at", "updated_at"}

// SaveIdentity inserts or replaces an identity.
func (s *Store) SaveIdentity(ctx context.Context, id model.Identity) error { //nolint:gocritic // hugeParam
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	row := rowFromIdentity(id)
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(identityUpserts),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save identity %d: %w", id.ID, err)
	}
	return nil
}

// DeleteIdentity soft deletes an identity. Deleting an unknown id is not an error.
func (s *Store) DeleteIdentity(ctx context.Context, id int64) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Delete(&identityRow{}, id).Error; err != nil {
		return fmt.Errorf("delete identity %d: %w", id, err)
	}
	return nil
}

// LoadIdentities returns the live identities ordered by id and the largest
// id ever issued, deleted ones included.
func (s *Store) LoadIdentities(ctx context.Context) ([]model.Identity, int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, 0, err
	}
	var rows []identityRow
	if err := db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("load identities: %w", err)
	}
	var maxID int64
	if err := db.Unscoped().Model(&identityRow{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
		return nil, 0, fmt.Errorf("load max identity id: %w", err)
	}
	out := make([]model.Identity, len(rows))
	for i := range rows {
		out[i] = rows[i].identity()
	}
	return out, maxID, nil
}

// AppendRecord stores one attendance record.
func (s *Store) AppendRecord(ctx context.Context, rec model.AttendanceRecord) error { //nolint:gocritic // hugeParam
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	row := rowFromRecord(rec)
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}
	return nil
}

// ClearRecords deletes every attendance record and returns how many went.
func (s *Store) ClearRecords(ctx context.Context) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&attendanceRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ClearRecordsFor deletes the records of one identity.
func (s *Store) ClearRecordsFor(ctx context.Context, identityID int64) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Where("identity_id = ?", identityID).Delete(&attendanceRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear records for %d: %w", identityID, res.Error)
	}
	return res.RowsAffected, nil
}

// LoadRecords returns every record in append order.
func (s *Store) LoadRecords(ctx context.Context) ([]model.AttendanceRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []attendanceRow
	if err := db.Order("seq asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	out := make([]model.AttendanceRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	return out, nil
}

// Close releases the connection pool. Further calls return ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return sqlDB.Close()
}
