package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clearharbor/portal/services/auth-service/internal/domain"
)

type securityEventRepository struct {
	db *gorm.DB
}

func (r *securityEventRepository) Insert(ctx context.Context, event domain.SecurityEvent) error {
	row := toSecurityEventModel(event)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *securityEventRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int, since *time.Time, kind string) ([]domain.SecurityEvent, error) {
	query := r.db.WithContext(ctx).
		Model(&securityEventModel{}).
		Where("user_id = ?", userID)
	if since != nil {
		query = query.Where("occurred_at >= ?", *since)
	}
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var rows []securityEventModel
	if err := query.
		Order("occurred_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	events := make([]domain.SecurityEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, toDomainSecurityEvent(row))
	}
	return events, nil
}
