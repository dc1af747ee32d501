package models

import "time"

const (
	MidiStatusPending    = "pending"
	MidiStatusProcessing = "processing"
	MidiStatusCompleted  = "completed"
	MidiStatusError      = "error"
)

// MidiFile 与 Stem 一对一；ObjectKey 在转换完成前为空
type MidiFile struct {
	ID           string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	StemID       string     `gorm:"uniqueIndex;type:varchar(64)" json:"stemId"`
	ObjectKey    string     `json:"objectKey"`
	Status       string     `gorm:"type:varchar(20)" json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (MidiFile) TableName() string {
	return "midi_file"
}
