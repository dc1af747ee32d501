package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"souniq-server/config"
	"souniq-server/gateway"
	"souniq-server/logger"
	"souniq-server/models"
	"souniq-server/store"

	"go.uber.org/zap"
)

// Executor 执行单个流水线阶段，端到端。同一份实现被同步和后台两种
// 调度方式复用。
type Executor struct {
	Store     store.Store
	Artifacts ArtifactStore
	Gateway   gateway.Gateway
	StemOrder []string
	// TempDir 本地临时文件目录，空串用系统默认；测试里指定以便断言清理
	TempDir string
}

func NewExecutor(st store.Store, artifacts ArtifactStore, gw gateway.Gateway, cfg *config.Config) *Executor {
	return &Executor{
		Store:     st,
		Artifacts: artifacts,
		Gateway:   gw,
		StemOrder: cfg.Pipeline.StemOrder,
	}
}

// Run 按任务记录执行对应阶段并做状态簿记。阶段错误落到任务和实体
// 状态里，不往上抛 panic。返回成功产出的 artifact 数量。
func (e *Executor) Run(ctx context.Context, taskID string) (int, error) {
	task, err := e.Store.GetTask(taskID)
	if err != nil {
		return 0, fmt.Errorf("task not found: %w", err)
	}

	now := time.Now()
	task.Status = models.TaskStatusInProgress
	task.StartedAt = &now
	task.Progress = 10
	if err := e.Store.UpdateTask(task); err != nil {
		logger.Error("更新任务状态失败", zap.String("task", task.ID), zap.Error(err))
	}

	progress := func(p int) {
		task.Progress = p
		if err := e.Store.UpdateTask(task); err != nil {
			logger.Debug("写入进度失败", zap.String("task", task.ID), zap.Error(err))
		}
	}

	logger.Info("开始执行任务",
		zap.String("task", task.ID),
		zap.String("type", task.TaskType))

	var count int
	var stageErr error
	switch task.TaskType {
	case models.TaskTypeStemGeneration:
		count, stageErr = e.SeparateSong(ctx, task.SongID, progress)
	case models.TaskTypeMidiConversion:
		stageErr = e.ConvertStem(ctx, task.StemID, progress)
		if stageErr == nil {
			count = 1
		}
	case models.TaskTypeTrackGeneration:
		count, stageErr = e.GenerateTrack(ctx, task.TrackID, progress)
	default:
		stageErr = fmt.Errorf("unknown task type: %s", task.TaskType)
	}

	done := time.Now()
	task.CompletedAt = &done
	if stageErr != nil {
		task.Status = models.TaskStatusFailed
		task.ErrorMessage = stageErr.Error()
		logger.Error("任务失败",
			zap.String("task", task.ID),
			zap.String("type", task.TaskType),
			zap.Error(stageErr))
	} else {
		task.Status = models.TaskStatusCompleted
		task.Progress = 100
		logger.Info("任务完成",
			zap.String("task", task.ID),
			zap.Int("count", count))
	}
	if err := e.Store.UpdateTask(task); err != nil {
		logger.Error("更新任务终态失败", zap.String("task", task.ID), zap.Error(err))
	}
	return count, stageErr
}

// stageToTemp 把 blob 落到本地临时文件。返回的 cleanup 无论成功失败
// 都必须被调用（配合 defer），保证没有残留文件。
func (e *Executor) stageToTemp(ctx context.Context, objectKey, suffix string) (string, func(), error) {
	rc, err := e.Artifacts.Get(ctx, objectKey)
	if err != nil {
		return "", nil, fmt.Errorf("读取 artifact 失败: %w", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(e.TempDir, "souniq-*"+suffix)
	if err != nil {
		return "", nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("清理临时文件失败", zap.String("path", path), zap.Error(err))
		}
	}

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("关闭临时文件失败: %w", err)
	}
	return path, cleanup, nil
}

// writeTemp 把内存里的内容落到临时文件（生成阶段用）
func (e *Executor) writeTemp(data []byte, suffix string) (string, func(), error) {
	tmp, err := os.CreateTemp(e.TempDir, "souniq-*"+suffix)
	if err != nil {
		return "", nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	path := tmp.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("清理临时文件失败", zap.String("path", path), zap.Error(err))
		}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("关闭临时文件失败: %w", err)
	}
	return path, cleanup, nil
}

func report(progress func(int), p int) {
	if progress != nil {
		progress(p)
	}
}
