package service

import (
	"context"
	"fmt"

	"souniq-server/gateway"
	"souniq-server/logger"
	"souniq-server/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SeparateSong 分离阶段：歌曲 -> 7 路 stem。
// 单个 stem 落库失败只跳过该路；至少产出一路即算成功。
func (e *Executor) SeparateSong(ctx context.Context, songID string, progress func(int)) (int, error) {
	song, err := e.Store.GetSong(songID)
	if err != nil {
		return 0, fmt.Errorf("song not found: %w", err)
	}

	song.Status = models.SongStatusProcessingStems
	if err := e.Store.UpdateSong(song); err != nil {
		return 0, fmt.Errorf("更新歌曲状态失败: %w", err)
	}

	created, err := e.separate(ctx, song, progress)
	if err != nil {
		song.Status = models.SongStatusError
		if uerr := e.Store.UpdateSong(song); uerr != nil {
			logger.Error("写入歌曲错误状态失败", zap.String("song", song.ID), zap.Error(uerr))
		}
		return 0, err
	}

	song.Status = models.SongStatusStemsCompleted
	if err := e.Store.UpdateSong(song); err != nil {
		return created, fmt.Errorf("更新歌曲终态失败: %w", err)
	}
	logger.Info("分离完成",
		zap.String("song", song.ID),
		zap.Int("stems_created", created))
	return created, nil
}

func (e *Executor) separate(ctx context.Context, song *models.Song, progress func(int)) (int, error) {
	report(progress, 20)
	tmpPath, cleanup, err := e.stageToTemp(ctx, song.ObjectKey, ".wav")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	report(progress, 30)
	entries, err := e.Gateway.Separate(ctx, tmpPath)
	if err != nil {
		return 0, fmt.Errorf("分离服务调用失败: %w", err)
	}
	if len(entries) < models.StemCount {
		return 0, fmt.Errorf("分离结果不足: 期望 %d 路，实际 %d", models.StemCount, len(entries))
	}
	report(progress, 70)

	created := 0
	for i, entry := range entries[:models.StemCount] {
		stemType := e.stemTypeFor(i)
		if !entry.Usable() {
			logger.Warn("stem 结果不可用，跳过",
				zap.String("song", song.ID),
				zap.Int("ordinal", i),
				zap.String("stem_type", stemType))
			continue
		}
		if err := e.persistStem(ctx, song, i, stemType, entry); err != nil {
			logger.Error("stem 落库失败，跳过",
				zap.String("song", song.ID),
				zap.Int("ordinal", i),
				zap.String("stem_type", stemType),
				zap.Error(err))
			continue
		}
		created++
		p := 70 + created*3
		if p > 95 {
			p = 95
		}
		report(progress, p)
	}

	if created == 0 {
		return 0, fmt.Errorf("未能生成任何 stem")
	}
	return created, nil
}

// persistStem 以 (song, ordinal) 为键写入 stem 及其伴随的 pending MidiFile。
// 重跑分离时覆盖已有记录，不新增行。
func (e *Executor) persistStem(ctx context.Context, song *models.Song, ordinal int, stemType string, entry gateway.ResultEntry) error {
	rc, size, err := entry.Open(ctx, nil)
	if err != nil {
		return fmt.Errorf("打开 stem 结果失败: %w", err)
	}
	defer rc.Close()

	key := StemObjectKey(song.ID, ordinal, stemType)
	if err := e.Artifacts.Put(ctx, key, rc, size); err != nil {
		return err
	}

	stem := &models.Stem{
		ID:        uuid.NewString(),
		SongID:    song.ID,
		Ordinal:   ordinal,
		StemType:  stemType,
		ObjectKey: key,
	}
	// UpsertStem 命中已有 (song, ordinal) 时会把 stem.ID 改回原值
	if err := e.Store.UpsertStem(stem); err != nil {
		return fmt.Errorf("写入 stem 失败: %w", err)
	}
	if _, err := e.Store.EnsureMidiFile(stem.ID); err != nil {
		return fmt.Errorf("创建伴随 MidiFile 失败: %w", err)
	}
	return nil
}

func (e *Executor) stemTypeFor(ordinal int) string {
	if ordinal < len(e.StemOrder) {
		return e.StemOrder[ordinal]
	}
	return models.StemTypeOther
}
