package sqlstore

import (
	"time"

	"gorm.io/gorm"

	"github.com/okian/rollcall/internal/domain/model"
)

// identityRow is an enrolled identity. Rows are soft deleted so the largest
// id ever issued survives removals.
type identityRow struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false"`
	DisplayName string    `gorm:"size:255"`
	ExternalRef string    `gorm:"size:255;index"`
	Descriptor  []float64 `gorm:"serializer:json;not null"`
	EnrolledAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (identityRow) TableName() string { return "identities" }

func rowFromIdentity(id model.Identity) identityRow { //nolint:gocritic // hugeParam
	return identityRow{
		ID:          id.ID,
		DisplayName: id.DisplayName,
		ExternalRef: id.ExternalRef,
		Descriptor:  []float64(id.Descriptor.Clone()),
		EnrolledAt:  id.EnrolledAt.UTC(),
	}
}

func (r identityRow) identity() model.Identity { //nolint:gocritic // hugeParam
	return model.Identity{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		ExternalRef: r.ExternalRef,
		Descriptor:  model.Descriptor(r.Descriptor),
		EnrolledAt:  r.EnrolledAt,
	}
}

// attendanceRow is one attendance record.
type attendanceRow struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Seq        uint64    `gorm:"uniqueIndex"`
	IdentityID int64     `gorm:"index"`
	Timestamp  time.Time `gorm:"index"`
	Confidence float64
	Location   string `gorm:"size:255"`
	Manual     bool
}

func (attendanceRow) TableName() string { return "attendance_records" }

func rowFromRecord(rec model.AttendanceRecord) attendanceRow { //nolint:gocritic // hugeParam
	return attendanceRow{
		ID:         rec.ID,
		Seq:        rec.Seq,
		IdentityID: rec.IdentityID,
		Timestamp:  rec.Timestamp.UTC(),
		Confidence: rec.Confidence,
		Location:   rec.Location,
		Manual:     rec.Manual,
	}
}

func (r attendanceRow) record() model.AttendanceRecord { //nolint:gocritic // hugeParam
	return model.AttendanceRecord{
		ID:         r.ID,
		Seq:        r.Seq,
		IdentityID: r.IdentityID,
		Timestamp:  r.Timestamp,
		Confidence: r.Confidence,
		Location:   r.Location,
		Manual:     r.Manual,
	}
}
