package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/repository"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/infrastructure/persistence/models"
	domainErrors "github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/errors"
)

// GormSessionRepository GORM 实现的会话仓储
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository 创建 GORM 会话仓储
func NewGormSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &GormSessionRepository{
		db: db,
	}
}

// Append 追加会话消息并修剪窗口
// Insert and trim run in one transaction so the window never overshoots
// maxTurns, even with concurrent writers on the same session.
func (r *GormSessionRepository) Append(ctx context.Context, sessionID string, userKey int64, role entity.Role, content string, maxTurns int) error {
	if maxTurns < 1 {
		return domainErrors.NewInvalidInputError("maxTurns must be at least 1")
	}
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		session := models.SessionModel{
			SessionID:    sessionID,
			UserID:       userKey,
			LastActivity: now,
			Active:       true,
		}
		if err := tx.Where("session_id = ?", sessionID).FirstOrCreate(&session).Error; err != nil {
			return err
		}

		turn := models.TurnModel{
			SessionID: sessionID,
			UserID:    userKey,
			Role:      string(role),
			Content:   content,
			TS:        now,
		}
		if err := tx.Create(&turn).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.TurnModel{}).
			Where("session_id = ?", sessionID).
			Count(&count).Error; err != nil {
			return err
		}
		if excess := count - int64(maxTurns); excess > 0 {
			var staleIDs []uint
			if err := tx.Model(&models.TurnModel{}).
				Where("session_id = ?", sessionID).
				Order("ts asc, id asc").
				Limit(int(excess)).
				Pluck("id", &staleIDs).Error; err != nil {
				return err
			}
			if len(staleIDs) > 0 {
				if err := tx.Delete(&models.TurnModel{}, staleIDs).Error; err != nil {
					return err
				}
				count -= int64(len(staleIDs))
			}
		}

		// A write reactivates the session, reaped or not.
		return tx.Model(&models.SessionModel{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"last_activity": now,
				"message_count": count,
				"active":        true,
			}).Error
	})
	if err != nil {
		return domainErrors.NewStoreError("failed to append session turn", err)
	}
	return nil
}

// RecentTurns 查询最近的会话消息 (按时间正序返回)
func (r *GormSessionRepository) RecentTurns(ctx context.Context, sessionID string, maxTurns int) ([]entity.SessionTurn, error) {
	if maxTurns < 1 {
		return nil, nil
	}

	var rows []models.TurnModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("ts desc, id desc").
		Limit(maxTurns).
		Find(&rows).Error
	if err != nil {
		return nil, domainErrors.NewStoreError("failed to load session turns", err)
	}

	turns := make([]entity.SessionTurn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = entity.SessionTurn{
			Role:    entity.Role(row.Role),
			Content: row.Content,
			TS:      row.TS,
		}
	}
	return turns, nil
}

// Clear 清空会话
func (r *GormSessionRepository) Clear(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.TurnModel{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", sessionID).Delete(&models.SessionModel{}).Error
	})
	if err != nil {
		return domainErrors.NewStoreError("failed to clear session", err)
	}
	return nil
}

// Reap 停用过期会话并删除其消息
// The session rows themselves survive as inactive tombstones, so a
// returning user picks up the same session_id with a fresh window.
func (r *GormSessionRepository) Reap(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []string
		if err := tx.Model(&models.SessionModel{}).
			Where("last_activity < ? AND active = ?", cutoff, true).
			Pluck("session_id", &stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		res := tx.Where("session_id IN ?", stale).Delete(&models.TurnModel{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Model(&models.SessionModel{}).
			Where("session_id IN ?", stale).
			Updates(map[string]interface{}{
				"active":        false,
				"message_count": 0,
			}).Error
	})
	if err != nil {
		return 0, domainErrors.NewStoreError("failed to reap sessions", err)
	}
	return removed, nil
}
