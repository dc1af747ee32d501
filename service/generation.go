package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"souniq-server/gateway"
	"souniq-server/logger"
	"souniq-server/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MinMidiBytes MIDI 文件的最小可信长度，低于这个值基本是转换产出的空壳
const MinMidiBytes = 100

var midiMagic = []byte("MThd")

// ValidateMIDI 在发起远程调用之前做本地校验，避免把坏文件送去排队
func ValidateMIDI(data []byte) error {
	if len(data) < MinMidiBytes {
		return fmt.Errorf("MIDI 文件过小: %d bytes", len(data))
	}
	if !bytes.HasPrefix(data, midiMagic) {
		return fmt.Errorf("不是有效的 MIDI 文件（缺少 MThd 头）")
	}
	return nil
}

// GenerateTrack 生成阶段：MIDI -> 最多 8 个候选版本。返回实际落库的版本数。
func (e *Executor) GenerateTrack(ctx context.Context, trackID string, progress func(int)) (int, error) {
	track, err := e.Store.GetTrack(trackID)
	if err != nil {
		return 0, fmt.Errorf("track not found: %w", err)
	}

	track.Status = models.TrackStatusProcessing
	track.ErrorMessage = ""
	if err := e.Store.UpdateTrack(track); err != nil {
		return 0, fmt.Errorf("更新 track 状态失败: %w", err)
	}

	created, err := e.generate(ctx, track, progress)
	if err != nil {
		track.Status = models.TrackStatusError
		track.ErrorMessage = err.Error()
		if uerr := e.Store.UpdateTrack(track); uerr != nil {
			logger.Error("写入 track 错误状态失败", zap.String("track", track.ID), zap.Error(uerr))
		}
		return created, err
	}

	now := time.Now()
	track.Status = models.TrackStatusCompleted
	track.CompletedAt = &now
	if err := e.Store.UpdateTrack(track); err != nil {
		return created, fmt.Errorf("更新 track 终态失败: %w", err)
	}
	return created, nil
}

func (e *Executor) generate(ctx context.Context, track *models.GeneratedTrack, progress func(int)) (int, error) {
	midi, err := e.Store.GetMidiFile(track.MidiFileID)
	if err != nil {
		return 0, fmt.Errorf("MIDI 文件不存在: %w", err)
	}
	if midi.Status != models.MidiStatusCompleted || midi.ObjectKey == "" {
		return 0, fmt.Errorf("MIDI 尚未转换完成，无法生成")
	}

	rc, err := e.Artifacts.Get(ctx, midi.ObjectKey)
	if err != nil {
		return 0, fmt.Errorf("读取 MIDI 失败: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return 0, fmt.Errorf("读取 MIDI 失败: %w", err)
	}
	if err := ValidateMIDI(data); err != nil {
		return 0, err
	}

	report(progress, 20)
	tmpPath, cleanup, err := e.writeTemp(data, ".mid")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	params := gateway.GenerationParams{
		ApplySustains:              track.ApplySustains,
		RemoveDuplicatePitches:     track.RemoveDuplicatePitches,
		RemoveOverlappingDurations: track.RemoveOverlappingDuration,
		PrimeInstruments:           track.PrimeInstruments,
		NumPrimeTokens:             track.NumPrimeTokens,
		NumGenTokens:               track.NumGenTokens,
		ModelTemperature:           track.ModelTemperature,
		ModelTopP:                  track.ModelTopP,
		AddDrums:                   track.AddDrums,
		AddOutro:                   track.AddOutro,
	}

	report(progress, 40)
	slots, err := e.Gateway.Generate(ctx, tmpPath, params)
	if err != nil {
		return 0, fmt.Errorf("生成服务调用失败: %w", err)
	}

	// 版本编号连续递增：只有真正落库成功才占用一个编号，
	// 跳过的槽位不会在编号序列里留洞
	created := 0
	next := 1
	for i, slot := range slots {
		if next > models.VersionLimit {
			break
		}
		if !slot.Usable() {
			logger.Warn("生成结果槽位不可用，跳过",
				zap.String("track", track.ID),
				zap.Int("slot", i))
			continue
		}
		if err := e.persistVersion(ctx, track, slot, next); err != nil {
			logger.Error("版本落库失败，跳过该槽位",
				zap.String("track", track.ID),
				zap.Int("slot", i),
				zap.Error(err))
			continue
		}
		created++
		next++
		p := 50 + created*6
		if p > 95 {
			p = 95
		}
		report(progress, p)
	}

	if created == 0 {
		return 0, fmt.Errorf("生成服务未产出任何可用版本")
	}
	logger.Info("track 生成完成",
		zap.String("track", track.ID),
		zap.Int("versions", created))
	return created, nil
}

func (e *Executor) persistVersion(ctx context.Context, track *models.GeneratedTrack, slot gateway.ResultEntry, number int) error {
	rc, size, err := slot.Open(ctx, nil)
	if err != nil {
		return err
	}
	defer rc.Close()

	key := VersionObjectKey(track.ID, number)
	if err := e.Artifacts.Put(ctx, key, rc, size); err != nil {
		return err
	}

	version := &models.GeneratedVersion{
		ID:            uuid.NewString(),
		TrackID:       track.ID,
		VersionNumber: number,
		ObjectKey:     key,
		FileSize:      size,
	}
	return e.Store.CreateVersion(version)
}
