package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"penalty-service/internal/domain/penalty"
)

type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type Driver struct {
	ID               int64     `gorm:"primaryKey"`
	PlateNo          string    `gorm:"not null;uniqueIndex"`
	OwnerName        string    `gorm:"not null"`
	Email            *string
	VehicleType      string    `gorm:"not null"`
	RegisteredAt     time.Time `gorm:"not null"`
	ContributorLevel string    `gorm:"not null"`
	UploadCount      int       `gorm:"not null"`
}

type Violation struct {
	ID             int64     `gorm:"primaryKey"`
	Reference      string    `gorm:"type:uuid;not null;uniqueIndex"`
	PlateNo        string    `gorm:"not null"`
	Code           string    `gorm:"not null"`
	Label          string    `gorm:"not null"`
	Weight         float64   `gorm:"not null"`
	Multiplier     float64   `gorm:"not null"`
	Points         float64   `gorm:"not null"`
	RecordedAt     time.Time `gorm:"not null"`
	ExpiryDate     time.Time `gorm:"not null"`
	GeneratedEmail *string
	DriverEmail    *string
	PenaltySplit   *datatypes.JSONType[penalty.PenaltySplit] `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

type Reward struct {
	ID                int64     `gorm:"primaryKey"`
	PlateNo           string    `gorm:"not null"`
	Amount            float64   `gorm:"not null"`
	SubmittedAt       time.Time `gorm:"not null"`
	ViolationReported *string
	CreatedAt         time.Time
}

func (r *PostgresStore) FindDriver(ctx context.Context, plateNo string) (*penalty.Driver, error) {
	var row Driver
	err := r.db.WithContext(ctx).Where("plate_no = ?", plateNo).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &penalty.Driver{
		PlateNo:          row.PlateNo,
		OwnerName:        row.OwnerName,
		Email:            row.Email,
		VehicleType:      row.VehicleType,
		RegisteredAt:     row.RegisteredAt,
		ContributorLevel: row.ContributorLevel,
		UploadCount:      row.UploadCount,
	}, nil
}

func (r *PostgresStore) InsertDriver(ctx context.Context, driver *penalty.Driver) error {
	row := Driver{
		PlateNo:          driver.PlateNo,
		OwnerName:        driver.OwnerName,
		Email:            driver.Email,
		VehicleType:      driver.VehicleType,
		RegisteredAt:     driver.RegisteredAt,
		ContributorLevel: driver.ContributorLevel,
		UploadCount:      driver.UploadCount,
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresStore) CountEvents(ctx context.Context, plateNo, code string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Violation{}).
		Where("plate_no = ? AND code = ?", plateNo, code).
		Count(&count).Error
	return count, err
}

func (r *PostgresStore) InsertEvent(ctx context.Context, event *penalty.ViolationEvent) error {
	row := Violation{
		Reference:  event.Reference,
		PlateNo:    event.PlateNo,
		Code:       event.Type,
		Label:      event.Label,
		Weight:     event.Weight,
		Multiplier: event.Multiplier,
		Points:     event.Points,
		RecordedAt: event.Timestamp,
		ExpiryDate: event.ExpiryDate,
		CreatedAt:  time.Now(),
	}

	if event.GeneratedEmail != "" {
		row.GeneratedEmail = &event.GeneratedEmail
	}
	if event.DriverEmail != "" {
		row.DriverEmail = &event.DriverEmail
	}
	if event.PenaltySplit != nil {
		split := datatypes.NewJSONType(*event.PenaltySplit)
		row.PenaltySplit = &split
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	event.ID = row.ID
	return nil
}

func (r *PostgresStore) FindEventsByPlate(ctx context.Context, plateNo string) ([]penalty.ViolationEvent, error) {
	var rows []Violation
	err := r.db.WithContext(ctx).
		Where("plate_no = ?", plateNo).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	events := make([]penalty.ViolationEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toDomain())
	}
	return events, nil
}

func (r *PostgresStore) FindEventByReference(ctx context.Context, reference string) (*penalty.ViolationEvent, error) {
	var row Violation
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	event := row.toDomain()
	return &event, nil
}

func (r *PostgresStore) FindRewardsByPlate(ctx context.Context, plateNo string) ([]penalty.RewardSubmission, error) {
	var rows []Reward
	err := r.db.WithContext(ctx).
		Where("plate_no = ?", plateNo).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	rewards := make([]penalty.RewardSubmission, 0, len(rows))
	for _, row := range rows {
		reward := penalty.RewardSubmission{
			ID:        row.ID,
			PlateNo:   row.PlateNo,
			Amount:    row.Amount,
			Timestamp: row.SubmittedAt,
		}
		if row.ViolationReported != nil {
			reward.ViolationReported = *row.ViolationReported
		}
		rewards = append(rewards, reward)
	}
	return rewards, nil
}

func (v Violation) toDomain() penalty.ViolationEvent {
	event := penalty.ViolationEvent{
		ID:         v.ID,
		Reference:  v.Reference,
		PlateNo:    v.PlateNo,
		Type:       v.Code,
		Label:      v.Label,
		Weight:     v.Weight,
		Multiplier: v.Multiplier,
		Points:     v.Points,
		Timestamp:  v.RecordedAt,
		ExpiryDate: v.ExpiryDate,
	}
	if v.GeneratedEmail != nil {
		event.GeneratedEmail = *v.GeneratedEmail
	}
	if v.DriverEmail != nil {
		event.DriverEmail = *v.DriverEmail
	}
	if v.PenaltySplit != nil {
		split := v.PenaltySplit.Data()
		event.PenaltySplit = &split
	}
	return event
}

// InsertReward stores a dashcam reward submission. Rewards are produced by a
// separate submission flow; the penalty service only reads them.
func (r *PostgresStore) InsertReward(ctx context.Context, reward *penalty.RewardSubmission) error {
	row := Reward{
		PlateNo:     reward.PlateNo,
		Amount:      reward.Amount,
		SubmittedAt: reward.Timestamp,
		CreatedAt:   time.Now(),
	}
	if reward.ViolationReported != "" {
		row.ViolationReported = &reward.ViolationReported
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	reward.ID = row.ID
	return nil
}
