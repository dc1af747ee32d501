package store

import (
	"errors"
	"time"

	"souniq-server/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrTaskInFlight 同一目标实体上已有同类型的非终态任务
	ErrTaskInFlight = errors.New("task already in progress")
	// ErrDuplicate 违反唯一键约束
	ErrDuplicate = errors.New("duplicate record")
)

// Stats 面板统计
type Stats struct {
	Songs    int64 `json:"songs"`
	Stems    int64 `json:"stems"`
	Midis    int64 `json:"midis"`
	Tracks   int64 `json:"tracks"`
	Versions int64 `json:"versions"`
}

// Store 是流水线的持久化边界。生产环境走 MySQL/GORM，
// 测试用内存实现。
type Store interface {
	CreateSong(song *models.Song) error
	GetSong(id string) (*models.Song, error)
	ListSongs(userID string) ([]models.Song, error)
	UpdateSong(song *models.Song) error
	// DeleteSong 级联删除所有派生产物（stems、midi、tracks、versions、tasks）
	DeleteSong(id string) error

	// UpsertStem 以 (song_id, ordinal) 为键：已存在则覆盖内容并保留原 id
	UpsertStem(stem *models.Stem) error
	GetStem(id string) (*models.Stem, error)
	ListStems(songID string) ([]models.Stem, error)

	// EnsureMidiFile 惰性创建 stem 的伴随 MidiFile（pending）
	EnsureMidiFile(stemID string) (*models.MidiFile, error)
	GetMidiFile(id string) (*models.MidiFile, error)
	GetMidiFileByStem(stemID string) (*models.MidiFile, error)
	UpdateMidiFile(m *models.MidiFile) error
	// AllMidisCompleted 歌曲的全部 stem 是否都已转换完成
	AllMidisCompleted(songID string) (bool, error)

	CreateTrack(t *models.GeneratedTrack) error
	GetTrack(id string) (*models.GeneratedTrack, error)
	ListTracks(userID string) ([]models.GeneratedTrack, error)
	UpdateTrack(t *models.GeneratedTrack) error

	CreateVersion(v *models.GeneratedVersion) error
	GetVersion(id string) (*models.GeneratedVersion, error)
	ListVersions(trackID string) ([]models.GeneratedVersion, error)

	// ClaimTask 原子地做"查重 + 创建"：目标实体上已有同类型非终态任务时
	// 返回 ErrTaskInFlight，不落库
	ClaimTask(task *models.ProcessingTask) error
	GetTask(id string) (*models.ProcessingTask, error)
	UpdateTask(task *models.ProcessingTask) error
	// SweepFailedTasks 删除早于 olderThan 的失败任务记录，返回删除条数
	SweepFailedTasks(olderThan time.Time) (int64, error)

	Stats(userID string) (*Stats, error)
}
