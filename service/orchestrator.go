package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"souniq-server/config"
	"souniq-server/logger"
	"souniq-server/models"
	"souniq-server/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome 一次流水线请求的对外结果。阶段内部错误不直接往外抛，
// 统一折叠成 status + message 返回给调用方。
type Outcome struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
}

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Runner 把已落库的任务送去执行。DirectRunner 同步跑完，
// QueueRunner 丢进 asynq 队列由 worker 消费。
type Runner interface {
	Dispatch(ctx context.Context, taskID string) (*Outcome, error)
}

// DirectRunner 同步执行器，请求线程里直接跑完整个阶段
type DirectRunner struct {
	Exec *Executor
}

func (r *DirectRunner) Dispatch(ctx context.Context, taskID string) (*Outcome, error) {
	count, err := r.Exec.Run(ctx, taskID)
	if err != nil {
		return &Outcome{
			Status:  OutcomeError,
			Message: err.Error(),
			TaskID:  taskID,
		}, nil
	}
	return &Outcome{
		Status:  OutcomeSuccess,
		Message: fmt.Sprintf("处理完成，产出 %d 项", count),
		Count:   count,
		TaskID:  taskID,
	}, nil
}

// Orchestrator 流水线入口：校验前置状态、去重、落任务再分发
type Orchestrator struct {
	Store  store.Store
	Runner Runner
	cfg    *config.Config
}

func NewOrchestrator(st store.Store, runner Runner, cfg *config.Config) *Orchestrator {
	return &Orchestrator{Store: st, Runner: runner, cfg: cfg}
}

// RequestSeparation 请求整曲分离。重复请求（已有在途任务）返回提示而非报错。
func (o *Orchestrator) RequestSeparation(ctx context.Context, userID, songID string) (*Outcome, error) {
	song, err := o.Store.GetSong(songID)
	if err != nil {
		return nil, err
	}
	if song.Status == models.SongStatusProcessingStems {
		return &Outcome{Status: OutcomeError, Message: "歌曲正在分离中"}, nil
	}

	task := &models.ProcessingTask{
		ID:       uuid.NewString(),
		UserID:   userID,
		TaskType: models.TaskTypeStemGeneration,
		Status:   models.TaskStatusPending,
		SongID:   songID,
	}
	return o.claim(ctx, task)
}

// RequestConversion 请求单 stem 转 MIDI。已完成的允许重转，但在 message 里提示。
func (o *Orchestrator) RequestConversion(ctx context.Context, userID, stemID string) (*Outcome, error) {
	stem, err := o.Store.GetStem(stemID)
	if err != nil {
		return nil, err
	}

	var note string
	if midi, err := o.Store.GetMidiFileByStem(stem.ID); err == nil {
		switch midi.Status {
		case models.MidiStatusProcessing:
			return &Outcome{Status: OutcomeError, Message: "该 stem 正在转换中"}, nil
		case models.MidiStatusCompleted:
			note = "已有转换结果，将重新转换。"
		}
	}

	task := &models.ProcessingTask{
		ID:       uuid.NewString(),
		UserID:   userID,
		TaskType: models.TaskTypeMidiConversion,
		Status:   models.TaskStatusPending,
		StemID:   stem.ID,
	}
	out, err := o.claim(ctx, task)
	if err == nil && note != "" && out.Status == OutcomeSuccess {
		out.Message = note + out.Message
	}
	return out, err
}

// GenerationRequest 生成请求体。可选参数用指针区分"未给出"和显式的零值，
// 缺省时取服务默认值。
type GenerationRequest struct {
	Title                      string   `json:"title"`
	ApplySustains              *bool    `json:"applySustains"`
	RemoveDuplicatePitches     *bool    `json:"removeDuplicatePitches"`
	RemoveOverlappingDurations *bool    `json:"removeOverlappingDurations"`
	PrimeInstruments           []string `json:"primeInstruments"`
	NumPrimeTokens             *int     `json:"numPrimeTokens"`
	NumGenTokens               *int     `json:"numGenTokens"`
	ModelTemperature           *float64 `json:"modelTemperature"`
	ModelTopP                  *float64 `json:"modelTopP"`
	AddDrums                   bool     `json:"addDrums"`
	AddOutro                   bool     `json:"addOutro"`
}

// RequestGeneration 基于已完成的 MIDI 创建生成作业。track 行先落库，
// 该 track 上的任务再走去重声明。
func (o *Orchestrator) RequestGeneration(ctx context.Context, userID, midiID string, req GenerationRequest) (*Outcome, error) {
	midi, err := o.Store.GetMidiFile(midiID)
	if err != nil {
		return nil, err
	}
	if midi.Status != models.MidiStatusCompleted {
		return &Outcome{Status: OutcomeError, Message: "MIDI 尚未转换完成，无法生成"}, nil
	}

	defaults := o.cfg.Pipeline.Generation
	track := &models.GeneratedTrack{
		ID:                        uuid.NewString(),
		UserID:                    userID,
		MidiFileID:                midi.ID,
		Title:                     req.Title,
		ApplySustains:             boolOr(req.ApplySustains, true),
		RemoveDuplicatePitches:    boolOr(req.RemoveDuplicatePitches, true),
		RemoveOverlappingDuration: boolOr(req.RemoveOverlappingDurations, true),
		PrimeInstruments:          req.PrimeInstruments,
		NumPrimeTokens:            intOr(req.NumPrimeTokens, defaults.NumPrimeTokens),
		NumGenTokens:              intOr(req.NumGenTokens, defaults.NumGenTokens),
		ModelTemperature:          floatOr(req.ModelTemperature, defaults.ModelTemperature),
		ModelTopP:                 floatOr(req.ModelTopP, defaults.ModelTopP),
		AddDrums:                  req.AddDrums,
		AddOutro:                  req.AddOutro,
		GenOutro:                  "Auto",
		Status:                    models.TrackStatusPending,
	}
	if err := o.Store.CreateTrack(track); err != nil {
		return nil, err
	}

	task := &models.ProcessingTask{
		ID:       uuid.NewString(),
		UserID:   userID,
		TaskType: models.TaskTypeTrackGeneration,
		Status:   models.TaskStatusPending,
		TrackID:  track.ID,
	}
	return o.claim(ctx, task)
}

// claim 落任务 + 分发。ClaimTask 保证同目标同类型的在途任务唯一。
func (o *Orchestrator) claim(ctx context.Context, task *models.ProcessingTask) (*Outcome, error) {
	if err := o.Store.ClaimTask(task); err != nil {
		if errors.Is(err, store.ErrTaskInFlight) {
			return &Outcome{Status: OutcomeError, Message: "相同任务正在处理中，请勿重复提交"}, nil
		}
		return nil, err
	}
	logger.Info("任务已创建",
		zap.String("task", task.ID),
		zap.String("type", task.TaskType),
		zap.String("target", task.TargetID()))
	return o.Runner.Dispatch(ctx, task.ID)
}

// Sweep 清理超过保留期的失败任务记录
func (o *Orchestrator) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-o.cfg.TaskRetention())
	n, err := o.Store.SweepFailedTasks(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("清理失败任务", zap.Int64("removed", n))
	}
	return n, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// intOr/floatOr 只在参数缺省时回落默认值，显式传入的零值照收。
func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
