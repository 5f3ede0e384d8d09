package store

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mining-bot/internal/models"
)

const defaultBatchSize = 500

var errStopScan = errors.New("scan stopped")

// GormStore keeps user records in a SQL database through gorm.
type GormStore struct {
	db        *gorm.DB
	batchSize int
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, batchSize: defaultBatchSize}
}

// WithBatchSize sets how many records Scan loads per query.
func (s *GormStore) WithBatchSize(n int) *GormStore {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Migrate creates or updates the tables backing the store.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.UserRecord{}, &models.ReferralLink{})
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.UserRecord, error) {
	var rec models.UserRecord
	err := s.db.WithContext(ctx).Preload("Referrals").Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get "+id, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) Set(ctx context.Context, rec *models.UserRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || s.exists(s.db.WithContext(ctx), rec.ID) {
		return fmt.Errorf("set %s: %w", rec.ID, ErrAlreadyExists)
	}
	return unavailable("set "+rec.ID, err)
}

func (s *GormStore) Update(ctx context.Context, id string, ops ...Op) error {
	u := newUpdate(ops)
	if u.empty() {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.UserRecord{}).Where("id = ?", id)
		for _, c := range u.where {
			q = q.Where(c.query, c.args...)
		}

		var matched int64
		if len(u.columns) > 0 {
			res := q.Updates(u.columns)
			if res.Error != nil {
				return res.Error
			}
			matched = res.RowsAffected
		} else if err := q.Count(&matched).Error; err != nil {
			return err
		}
		if matched == 0 {
			if s.exists(tx, id) {
				return ErrPreconditionFailed
			}
			return ErrNotFound
		}

		if len(u.referrals) == 0 {
			return nil
		}
		links := make([]models.ReferralLink, 0, len(u.referrals))
		for _, link := range u.referrals {
			link.AncestorID = id
			links = append(links, link)
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPreconditionFailed):
		return fmt.Errorf("update %s: %w", id, err)
	default:
		return unavailable("update "+id, err)
	}
}

func (s *GormStore) Scan(ctx context.Context) iter.Seq2[*models.UserRecord, error] {
	return func(yield func(*models.UserRecord, error) bool) {
		var batch []models.UserRecord
		stopped := false

		res := s.db.WithContext(ctx).Preload("Referrals").FindInBatches(&batch, s.batchSize, func(_ *gorm.DB, _ int) error {
			for i := range batch {
				rec := batch[i]
				if !yield(&rec, rec.Validate()) {
					stopped = true
					return errStopScan
				}
			}
			return nil
		})
		if res.Error != nil && !stopped {
			yield(nil, unavailable("scan", res.Error))
		}
	}
}

func (s *GormStore) exists(db *gorm.DB, id string) bool {
	var n int64
	if err := db.Model(&models.UserRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false
	}
	return n > 0
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
