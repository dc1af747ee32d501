package store

import (
	"errors"
	"fmt"
	"time"

	"souniq-server/models"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore MySQL 实现
type GormStore struct {
	db *gorm.DB
}

// Connect 建立 GORM 连接并自动建表
func Connect(dsn string) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&models.Song{},
		&models.Stem{},
		&models.MidiFile{},
		&models.GeneratedTrack{},
		&models.GeneratedVersion{},
		&models.ProcessingTask{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}

	return &GormStore{db: db}, nil
}

// NewGormStore 包一个已有连接（测试或命令行工具用）
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) CreateSong(song *models.Song) error {
	if song.UploadedAt.IsZero() {
		song.UploadedAt = time.Now()
	}
	return s.db.Create(song).Error
}

func (s *GormStore) GetSong(id string) (*models.Song, error) {
	var song models.Song
	if err := s.db.First(&song, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &song, nil
}

func (s *GormStore) ListSongs(userID string) ([]models.Song, error) {
	var songs []models.Song
	q := s.db.Order("uploaded_at DESC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&songs).Error; err != nil {
		return nil, err
	}
	return songs, nil
}

func (s *GormStore) UpdateSong(song *models.Song) error {
	return s.db.Save(song).Error
}

func (s *GormStore) DeleteSong(id string) error {
	// 外键约束在建表时被禁用，级联在应用层一把事务里完成
	return s.db.Transaction(func(tx *gorm.DB) error {
		var stemIDs []string
		if err := tx.Model(&models.Stem{}).Where("song_id = ?", id).Pluck("id", &stemIDs).Error; err != nil {
			return err
		}
		if len(stemIDs) > 0 {
			var midiIDs []string
			if err := tx.Model(&models.MidiFile{}).Where("stem_id IN ?", stemIDs).Pluck("id", &midiIDs).Error; err != nil {
				return err
			}
			if len(midiIDs) > 0 {
				var trackIDs []string
				if err := tx.Model(&models.GeneratedTrack{}).Where("midi_file_id IN ?", midiIDs).Pluck("id", &trackIDs).Error; err != nil {
					return err
				}
				if len(trackIDs) > 0 {
					if err := tx.Where("track_id IN ?", trackIDs).Delete(&models.GeneratedVersion{}).Error; err != nil {
						return err
					}
					if err := tx.Where("track_id IN ?", trackIDs).Delete(&models.ProcessingTask{}).Error; err != nil {
						return err
					}
					if err := tx.Where("id IN ?", trackIDs).Delete(&models.GeneratedTrack{}).Error; err != nil {
						return err
					}
				}
				if err := tx.Where("id IN ?", midiIDs).Delete(&models.MidiFile{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("stem_id IN ?", stemIDs).Delete(&models.ProcessingTask{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", stemIDs).Delete(&models.Stem{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("song_id = ?", id).Delete(&models.ProcessingTask{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Song{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) UpsertStem(stem *models.Stem) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Stem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("song_id = ? AND ordinal = ?", stem.SongID, stem.Ordinal).
			First(&existing).Error
		switch {
		case err == nil:
			stem.ID = existing.ID
			stem.CreatedAt = existing.CreatedAt
			return tx.Model(&existing).Updates(map[string]interface{}{
				"stem_type":  stem.StemType,
				"object_key": stem.ObjectKey,
				"updated_at": time.Now(),
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(stem).Error
		default:
			return err
		}
	})
}

func (s *GormStore) GetStem(id string) (*models.Stem, error) {
	var stem models.Stem
	if err := s.db.First(&stem, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &stem, nil
}

func (s *GormStore) ListStems(songID string) ([]models.Stem, error) {
	var stems []models.Stem
	if err := s.db.Where("song_id = ?", songID).Order("ordinal ASC").Find(&stems).Error; err != nil {
		return nil, err
	}
	return stems, nil
}

func (s *GormStore) EnsureMidiFile(stemID string) (*models.MidiFile, error) {
	var m models.MidiFile
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("stem_id = ?", stemID).First(&m).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		m = models.MidiFile{
			ID:     uuid.NewString(),
			StemID: stemID,
			Status: models.MidiStatusPending,
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) GetMidiFile(id string) (*models.MidiFile, error) {
	var m models.MidiFile
	if err := s.db.First(&m, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &m, nil
}

func (s *GormStore) GetMidiFileByStem(stemID string) (*models.MidiFile, error) {
	var m models.MidiFile
	if err := s.db.First(&m, "stem_id = ?", stemID).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &m, nil
}

func (s *GormStore) UpdateMidiFile(m *models.MidiFile) error {
	return s.db.Save(m).Error
}

func (s *GormStore) AllMidisCompleted(songID string) (bool, error) {
	var total, completed int64
	if err := s.db.Model(&models.Stem{}).Where("song_id = ?", songID).Count(&total).Error; err != nil {
		return false, err
	}
	if total == 0 {
		return false, nil
	}
	err := s.db.Model(&models.MidiFile{}).
		Joins("JOIN stem ON stem.id = midi_file.stem_id").
		Where("stem.song_id = ? AND midi_file.status = ?", songID, models.MidiStatusCompleted).
		Count(&completed).Error
	if err != nil {
		return false, err
	}
	return total == completed, nil
}

func (s *GormStore) CreateTrack(t *models.GeneratedTrack) error {
	return s.db.Create(t).Error
}

func (s *GormStore) GetTrack(id string) (*models.GeneratedTrack, error) {
	var t models.GeneratedTrack
	if err := s.db.First(&t, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

func (s *GormStore) ListTracks(userID string) ([]models.GeneratedTrack, error) {
	var tracks []models.GeneratedTrack
	q := s.db.Order("created_at DESC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&tracks).Error; err != nil {
		return nil, err
	}
	return tracks, nil
}

func (s *GormStore) UpdateTrack(t *models.GeneratedTrack) error {
	return s.db.Save(t).Error
}

func (s *GormStore) CreateVersion(v *models.GeneratedVersion) error {
	err := s.db.Create(v).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (s *GormStore) GetVersion(id string) (*models.GeneratedVersion, error) {
	var v models.GeneratedVersion
	if err := s.db.First(&v, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &v, nil
}

func (s *GormStore) ListVersions(trackID string) ([]models.GeneratedVersion, error) {
	var versions []models.GeneratedVersion
	if err := s.db.Where("track_id = ?", trackID).Order("version_number ASC").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (s *GormStore) ClaimTask(task *models.ProcessingTask) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(&models.ProcessingTask{}).
			Where("task_type = ? AND status IN ?", task.TaskType,
				[]string{models.TaskStatusPending, models.TaskStatusInProgress})
		switch task.TaskType {
		case models.TaskTypeStemGeneration:
			q = q.Where("song_id = ?", task.SongID)
		case models.TaskTypeMidiConversion:
			q = q.Where("stem_id = ?", task.StemID)
		case models.TaskTypeTrackGeneration:
			q = q.Where("track_id = ?", task.TrackID)
		default:
			return fmt.Errorf("unknown task type: %s", task.TaskType)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrTaskInFlight
		}
		if task.Status == "" {
			task.Status = models.TaskStatusPending
		}
		return tx.Create(task).Error
	})
}

func (s *GormStore) GetTask(id string) (*models.ProcessingTask, error) {
	var t models.ProcessingTask
	if err := s.db.First(&t, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

func (s *GormStore) UpdateTask(task *models.ProcessingTask) error {
	return s.db.Save(task).Error
}

func (s *GormStore) SweepFailedTasks(olderThan time.Time) (int64, error) {
	res := s.db.Where("status = ? AND created_at < ?", models.TaskStatusFailed, olderThan).
		Delete(&models.ProcessingTask{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) Stats(userID string) (*Stats, error) {
	st := &Stats{}
	if err := s.db.Model(&models.Song{}).Where("user_id = ?", userID).Count(&st.Songs).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Stem{}).
		Joins("JOIN song ON song.id = stem.song_id").
		Where("song.user_id = ?", userID).Count(&st.Stems).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.MidiFile{}).
		Joins("JOIN stem ON stem.id = midi_file.stem_id").
		Joins("JOIN song ON song.id = stem.song_id").
		Where("song.user_id = ? AND midi_file.status = ?", userID, models.MidiStatusCompleted).
		Count(&st.Midis).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.GeneratedTrack{}).Where("user_id = ?", userID).Count(&st.Tracks).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.GeneratedVersion{}).
		Joins("JOIN generated_track ON generated_track.id = generated_version.track_id").
		Where("generated_track.user_id = ?", userID).Count(&st.Versions).Error; err != nil {
		return nil, err
	}
	return st, nil
}
