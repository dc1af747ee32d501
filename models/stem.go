package models

import "time"

// stem 类型枚举。第 7 路是模型输出的纯伴奏轨，外部标签历史上变过
// （instrumental / Clean），系统内统一记作 clean。
const (
	StemTypeVocals = "vocals"
	StemTypeDrums  = "drums"
	StemTypeBass   = "bass"
	StemTypeGuitar = "guitar"
	StemTypePiano  = "piano"
	StemTypeOther  = "other"
	StemTypeClean  = "clean"
)

// StemCount 单次分离期望的结果数
const StemCount = 7

// Stem 以 (song_id, ordinal) 唯一标识，重跑分离时覆盖而不是新增
type Stem struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	SongID    string    `gorm:"uniqueIndex:uk_song_ordinal;type:varchar(64)" json:"songId"`
	Ordinal   int       `gorm:"uniqueIndex:uk_song_ordinal" json:"ordinal"`
	StemType  string    `gorm:"type:varchar(20)" json:"stemType"`
	ObjectKey string    `json:"objectKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Stem) TableName() string {
	return "stem"
}
