package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TrackStatusPending    = "pending"
	TrackStatusProcessing = "processing"
	TrackStatusCompleted  = "completed"
	TrackStatusError      = "error"
)

// VersionLimit 单次生成最多落库的候选数
const VersionLimit = 8

// StringList 以 JSON 存储的字符串列表（prime_instruments）
type StringList []string

// 实现 driver.Valuer 接口: Go Slice -> JSON String (存入数据库)
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// 实现 sql.Scanner 接口: JSON String -> Go Slice (从数据库读取)
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}
	return json.Unmarshal(bytes, l)
}

// GeneratedTrack 是一次生成作业。引用一个已完成的 MidiFile（不拥有，
// 多个 track 可以基于同一个 MIDI）。
type GeneratedTrack struct {
	ID         string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID     string `gorm:"index;type:varchar(64)" json:"userId"`
	MidiFileID string `gorm:"index;type:varchar(64)" json:"midiFileId"`
	Title      string `json:"title"`

	// Orpheus 生成参数
	ApplySustains             bool       `gorm:"default:true" json:"applySustains"`
	RemoveDuplicatePitches    bool       `gorm:"default:true" json:"removeDuplicatePitches"`
	RemoveOverlappingDuration bool       `gorm:"default:true" json:"removeOverlappingDurations"`
	PrimeInstruments          StringList `gorm:"type:json" json:"primeInstruments"`
	NumPrimeTokens            int        `gorm:"default:6656" json:"numPrimeTokens"`
	NumGenTokens              int        `gorm:"default:512" json:"numGenTokens"`
	ModelTemperature          float64    `gorm:"default:0.9" json:"modelTemperature"`
	ModelTopP                 float64    `gorm:"default:0.96" json:"modelTopP"`
	AddDrums                  bool       `json:"addDrums"`
	AddOutro                  bool       `json:"addOutro"`

	// 旧版 Giant-Music 参数，仅为兼容历史数据保留，不再发给服务
	GenOutro string `gorm:"type:varchar(20);default:Auto" json:"genOutro"`

	Status       string     `gorm:"type:varchar(20)" json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (GeneratedTrack) TableName() string {
	return "generated_track"
}

// GeneratedVersion 以 (track_id, version_number) 唯一，编号 1..8 连续递增
type GeneratedVersion struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TrackID       string    `gorm:"uniqueIndex:uk_track_version;type:varchar(64)" json:"trackId"`
	VersionNumber int       `gorm:"uniqueIndex:uk_track_version" json:"versionNumber"`
	ObjectKey     string    `json:"objectKey"`
	FileSize      int64     `json:"fileSize"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (GeneratedVersion) TableName() string {
	return "generated_version"
}
