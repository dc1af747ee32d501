package models

import "time"

// 后台任务状态
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"

	// 三种核心任务类型，对应流水线的三个阶段
	TaskTypeStemGeneration  = "stem_generation"  // 歌曲 -> stems
	TaskTypeMidiConversion  = "midi_conversion"  // stem -> MIDI
	TaskTypeTrackGeneration = "track_generation" // MIDI -> 新曲目
)

// ProcessingTask 既是后台任务的进度记录，也是同目标去重的依据：
// 同一目标实体上同类型的非终态任务最多存在一个。
type ProcessingTask struct {
	ID       string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID   string `gorm:"index;type:varchar(64)" json:"userId"`
	TaskType string `gorm:"type:varchar(20);index" json:"taskType"`
	Status   string `gorm:"type:varchar(20);index" json:"status"`

	// 目标实体引用，按任务类型恰好填一个
	SongID  string `gorm:"index;type:varchar(64)" json:"songId,omitempty"`
	StemID  string `gorm:"index;type:varchar(64)" json:"stemId,omitempty"`
	TrackID string `gorm:"index;type:varchar(64)" json:"trackId,omitempty"`

	Progress     int        `json:"progress"`
	ErrorMessage string     `gorm:"type:text" json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (ProcessingTask) TableName() string {
	return "processing_task"
}

// TargetID 返回任务指向的实体 id
func (t *ProcessingTask) TargetID() string {
	switch t.TaskType {
	case TaskTypeStemGeneration:
		return t.SongID
	case TaskTypeMidiConversion:
		return t.StemID
	case TaskTypeTrackGeneration:
		return t.TrackID
	}
	return ""
}

// Terminal 任务是否已到终态
func (t *ProcessingTask) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
