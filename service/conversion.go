package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"souniq-server/logger"
	"souniq-server/models"

	"go.uber.org/zap"
)

// ConvertStem 转换阶段：stem -> MIDI。MidiFile 不存在时惰性创建。
func (e *Executor) ConvertStem(ctx context.Context, stemID string, progress func(int)) error {
	stem, err := e.Store.GetStem(stemID)
	if err != nil {
		return fmt.Errorf("stem not found: %w", err)
	}

	midi, err := e.Store.EnsureMidiFile(stem.ID)
	if err != nil {
		return fmt.Errorf("获取 MidiFile 失败: %w", err)
	}

	midi.Status = models.MidiStatusProcessing
	midi.ErrorMessage = ""
	if err := e.Store.UpdateMidiFile(midi); err != nil {
		return fmt.Errorf("更新 MidiFile 状态失败: %w", err)
	}

	if err := e.convert(ctx, stem, midi, progress); err != nil {
		midi.Status = models.MidiStatusError
		midi.ErrorMessage = err.Error()
		if uerr := e.Store.UpdateMidiFile(midi); uerr != nil {
			logger.Error("写入 MidiFile 错误状态失败", zap.String("midi", midi.ID), zap.Error(uerr))
		}
		return err
	}
	return nil
}

func (e *Executor) convert(ctx context.Context, stem *models.Stem, midi *models.MidiFile, progress func(int)) error {
	report(progress, 20)
	tmpPath, cleanup, err := e.stageToTemp(ctx, stem.ObjectKey, ".wav")
	if err != nil {
		return err
	}
	defer cleanup()

	report(progress, 50)
	entry, err := e.Gateway.ConvertToMIDI(ctx, tmpPath)
	if err != nil {
		return fmt.Errorf("转换服务调用失败: %w", err)
	}
	if !entry.Usable() {
		return fmt.Errorf("服务未返回有效的 MIDI 文件")
	}

	rc, _, err := entry.Open(ctx, nil)
	if err != nil {
		return fmt.Errorf("打开转换结果失败: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("读取转换结果失败: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("转换结果为空文件")
	}

	report(progress, 80)
	key := MidiObjectKey(stem.ID)
	if err := e.Artifacts.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return err
	}

	now := time.Now()
	midi.ObjectKey = key
	midi.Status = models.MidiStatusCompleted
	midi.CompletedAt = &now
	if err := e.Store.UpdateMidiFile(midi); err != nil {
		return fmt.Errorf("更新 MidiFile 终态失败: %w", err)
	}

	logger.Info("MIDI 转换完成",
		zap.String("stem", stem.ID),
		zap.String("stem_type", stem.StemType),
		zap.Int("bytes", len(data)))

	// 同一首歌的 stem 全部转换完成时记一条，方便排查流水线进度
	if done, err := e.Store.AllMidisCompleted(stem.SongID); err == nil && done {
		logger.Info("歌曲全部 stem 已完成 MIDI 转换", zap.String("song", stem.SongID))
	}
	return nil
}
