package models

import "time"

// SessionModel is one conversation window, laid out as
// sessions(session_id, user_id, created_at, last_activity,
// message_count, active). LastActivity drives reaping: a session idle
// past retention is deactivated and its messages deleted, while the
// session row itself survives as a tombstone.
type SessionModel struct {
	SessionID    string `gorm:"primaryKey;size:128"`
	UserID       int64  `gorm:"column:user_id;index;not null"`
	CreatedAt    time.Time
	LastActivity time.Time `gorm:"index;not null"`
	MessageCount int64     `gorm:"not null;default:0"`
	Active       bool      `gorm:"not null;default:true"`
}

// TableName 指定表名
func (SessionModel) TableName() string {
	return "sessions"
}

// TurnModel is one stored message of a session window.
type TurnModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"size:128;not null;index:idx_messages_session_ts,priority:1"`
	UserID    int64     `gorm:"column:user_id;not null;index:idx_messages_user_ts,priority:1"`
	Role      string    `gorm:"size:16;not null"`
	Content   string    `gorm:"type:text;not null"`
	TS        time.Time `gorm:"not null;index:idx_messages_session_ts,priority:2;index:idx_messages_user_ts,priority:2"`
}

// TableName 指定表名
func (TurnModel) TableName() string {
	return "messages"
}
