package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"drumbot/internal/domain"
	logx "drumbot/pkg/logx"
)

type subscriptionModel struct {
	UserID       int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ChannelID    int64     `gorm:"column:channel_id;primaryKey;autoIncrement:false;index"`
	PostMode     string    `gorm:"column:post_mode;not null;index"`
	ExtraData    string    `gorm:"column:extra_data;not null;default:''"`
	ChannelTitle string    `gorm:"column:channel_title;not null;default:''"`
	OwnerHandle  string    `gorm:"column:owner_handle;not null;default:''"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (subscriptionModel) TableName() string { return "users_channels" }

func toModel(sub domain.Subscription) subscriptionModel {
	return subscriptionModel{
		UserID:       sub.OwnerID,
		ChannelID:    sub.DestinationID,
		PostMode:     sub.Policy.String(),
		ExtraData:    sub.PolicyParam,
		ChannelTitle: sub.DestinationTitle,
		OwnerHandle:  sub.OwnerHandle,
		UpdatedAt:    sub.UpdatedAt,
	}
}

// subscriptionUpsert overwrites everything but the key on (user_id, channel_id).
func subscriptionUpsert() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"post_mode", "extra_data", "channel_title", "owner_handle", "updated_at"}),
	}
}

func announcedUpsert() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "destination_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"file_path", "updated_at"}),
	}
}

func (m subscriptionModel) toDomain() domain.Subscription {
	return fromRow(m.UserID, m.ChannelID, m.PostMode, m.ExtraData, m.ChannelTitle, m.OwnerHandle, m.UpdatedAt)
}

type announcedModel struct {
	DestinationID int64     `gorm:"column:destination_id;primaryKey;autoIncrement:false"`
	FilePath      string    `gorm:"column:file_path;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (announcedModel) TableName() string { return "announced" }

type postgresStore struct {
	db  *gorm.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(log, logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&subscriptionModel{}, &announcedModel{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	log.Info("postgres store ready")
	return &postgresStore{db: db, log: log}, nil
}

func (s *postgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *postgresStore) Upsert(ctx context.Context, sub domain.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	model := toModel(sub)
	err := s.db.WithContext(ctx).Clauses(subscriptionUpsert()).Create(&model).Error
	if err != nil {
		return storageErr("upsert", err)
	}
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, ownerID, destID int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", ownerID, destID).
		Delete(&subscriptionModel{})
	if res.Error != nil {
		return false, storageErr("delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *postgresStore) DeleteByDestination(ctx context.Context, destID int64) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("channel_id = ?", destID).Delete(&subscriptionModel{})
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		return tx.Where("destination_id = ?", destID).Delete(&announcedModel{}).Error
	})
	if err != nil {
		return 0, storageErr("delete by destination", err)
	}
	return int(n), nil
}

func (s *postgresStore) Get(ctx context.Context, ownerID, destID int64) (domain.Subscription, error) {
	var m subscriptionModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", ownerID, destID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Subscription{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Subscription{}, storageErr("get", err)
	}
	return m.toDomain(), nil
}

func (s *postgresStore) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error) {
	return s.find("list by owner", s.db.WithContext(ctx).Where("user_id = ?", ownerID))
}

func (s *postgresStore) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	return s.find("list all", s.db.WithContext(ctx))
}

func (s *postgresStore) ListByPolicy(ctx context.Context, p domain.Policy) ([]domain.Subscription, error) {
	return s.find("list by policy", s.db.WithContext(ctx).Where("post_mode = ?", p.String()))
}

func (s *postgresStore) find(op string, q *gorm.DB) ([]domain.Subscription, error) {
	var models []subscriptionModel
	if err := q.Order("user_id, channel_id").Find(&models).Error; err != nil {
		return nil, storageErr(op, err)
	}
	out := make([]domain.Subscription, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (s *postgresStore) PutAnnounced(ctx context.Context, destID int64, filePath string) error {
	err := s.db.WithContext(ctx).
		Clauses(announcedUpsert()).
		Create(&announcedModel{DestinationID: destID, FilePath: filePath, UpdatedAt: time.Now()}).Error
	if err != nil {
		return storageErr("put announced", err)
	}
	return nil
}

func (s *postgresStore) LoadAnnounced(ctx context.Context) (map[int64]string, error) {
	var models []announcedModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, storageErr("load announced", err)
	}
	out := make(map[int64]string, len(models))
	for _, m := range models {
		out[m.DestinationID] = m.FilePath
	}
	return out, nil
}
