package models

import "time"

// 歌曲状态：除回退到 error 外只能单向前进
const (
	SongStatusUploaded        = "uploaded"
	SongStatusProcessingStems = "processing_stems"
	SongStatusStemsCompleted  = "stems_completed"
	SongStatusError           = "error"
)

type Song struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID     string    `gorm:"index;type:varchar(64)" json:"userId"`
	Title      string    `json:"title"`
	ObjectKey  string    `json:"objectKey"`
	Status     string    `json:"status"`
	FileSize   int64     `json:"fileSize"`
	Duration   float64   `json:"duration"`
	UploadedAt time.Time `json:"uploadedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Song) TableName() string {
	return "song"
}
