package ledger

import (
	"time"
)

// maxAnswerLength bounds the stored collector answer.
const maxAnswerLength = 512

// Attempt is one finished upload session.
type Attempt struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	File         string        `gorm:"index;not null" json:"file"`
	Transport    string        `gorm:"not null" json:"transport"`
	Endpoint     string        `gorm:"not null" json:"endpoint"`
	Status       string        `gorm:"index;not null" json:"status"`
	Code         string        `json:"code,omitempty"`
	RemoteStatus int           `json:"remote_status"`
	BytesSent    int64         `json:"bytes_sent"`
	BytesTotal   int64         `json:"bytes_total"`
	Duration     time.Duration `json:"duration"`
	Answer       string        `json:"answer,omitempty"`
	Error        string        `json:"error,omitempty"`
	Deleted      bool          `json:"deleted"`
	StartedAt    time.Time     `gorm:"index" json:"started_at"`
	CreatedAt    time.Time     `json:"created_at"`
}
