package revocation

import (
	"context"
	"encoding/hex"
	"time"

	"gorm.io/gorm"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// revokedTokenModel is the durable record for a single revoked rid.
type revokedTokenModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RevocationID string `gorm:"uniqueIndex;type:varchar(32);not null"`
	RevokedAt    time.Time
	ReasonName   string `gorm:"type:varchar(32)"`
	ReasonOther  string `gorm:"type:text"`
	SubjectID    string `gorm:"index;type:varchar(128)"`
	TokenExpiry  time.Time `gorm:"index"`
}

func (revokedTokenModel) TableName() string { return "qauth_revoked_tokens" }

// subjectRevocationModel tracks the subject-wide revocation time.
type subjectRevocationModel struct {
	SubjectID   string `gorm:"primaryKey;type:varchar(128)"`
	RevokedAt   time.Time
	ReasonName  string `gorm:"type:varchar(32)"`
	ReasonOther string `gorm:"type:text"`
}

func (subjectRevocationModel) TableName() string { return "qauth_subject_revocations" }

// GormStore is the durable Store implementation backed by Postgres via
// GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore auto-migrates the revocation tables and returns a Store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, qerr.New(qerr.KindInvalidInput, "gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&revokedTokenModel{}, &subjectRevocationModel{}); err != nil {
		return nil, qerr.Wrap(qerr.KindRevocation, "revocation schema migration failed", err)
	}
	return &GormStore{db: db}, nil
}

func (g *GormStore) IsRevoked(ctx context.Context, rid [16]byte) (Status, error) {
	var m revokedTokenModel
	err := g.db.WithContext(ctx).
		Where("revocation_id = ?", hex.EncodeToString(rid[:])).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Status{}, nil
		}
		return Status{}, qerr.Wrap(qerr.KindRevocation, "postgres query failed", err)
	}
	return Status{Revoked: true, RevokedAt: m.RevokedAt, Reason: Reason{Name: m.ReasonName, Other: m.ReasonOther}}, nil
}

func (g *GormStore) Revoke(ctx context.Context, entry Entry) error {
	m := revokedTokenModel{
		RevocationID: hex.EncodeToString(entry.RevocationID[:]),
		RevokedAt:    entry.RevokedAt,
		ReasonName:   entry.Reason.Name,
		ReasonOther:  entry.Reason.Other,
		SubjectID:    entry.SubjectID,
		TokenExpiry:  entry.TokenExpiry,
	}
	if err := g.db.WithContext(ctx).
		Where("revocation_id = ?", m.RevocationID).
		Assign(m).
		FirstOrCreate(&m).Error; err != nil {
		return qerr.Wrap(qerr.KindRevocation, "postgres upsert failed", err)
	}
	return nil
}

func (g *GormStore) RevokeSubject(ctx context.Context, subjectID string, at time.Time, reason Reason) error {
	m := subjectRevocationModel{
		SubjectID:   subjectID,
		RevokedAt:   at,
		ReasonName:  reason.Name,
		ReasonOther: reason.Other,
	}
	if err := g.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Assign(m).
		FirstOrCreate(&m).Error; err != nil {
		return qerr.Wrap(qerr.KindRevocation, "postgres upsert failed", err)
	}
	return nil
}

func (g *GormStore) SubjectRevokedAt(ctx context.Context, subjectID string) (time.Time, bool, error) {
	var m subjectRevocationModel
	err := g.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, qerr.Wrap(qerr.KindRevocation, "postgres query failed", err)
	}
	return m.RevokedAt, true, nil
}

func (g *GormStore) AllRevocationIDs(ctx context.Context) ([][16]byte, error) {
	var models []revokedTokenModel
	if err := g.db.WithContext(ctx).Select("revocation_id").Find(&models).Error; err != nil {
		return nil, qerr.Wrap(qerr.KindRevocation, "postgres query failed", err)
	}
	out := make([][16]byte, 0, len(models))
	for _, m := range models {
		b, err := hex.DecodeString(m.RevocationID)
		if err != nil || len(b) != 16 {
			continue
		}
		var rid [16]byte
		copy(rid[:], b)
		out = append(out, rid)
	}
	return out, nil
}

// Cleanup deletes entries whose TokenExpiry has passed.
func (g *GormStore) Cleanup(ctx context.Context) error {
	if err := g.db.WithContext(ctx).
		Where("token_expiry <= ?", time.Now()).
		Delete(&revokedTokenModel{}).Error; err != nil {
		return qerr.Wrap(qerr.KindRevocation, "postgres cleanup failed", err)
	}
	return nil
}
