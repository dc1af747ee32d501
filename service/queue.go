package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"souniq-server/config"
	"souniq-server/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TypePipelineTask = "pipeline:task"
)

type TaskPayload struct {
	TaskID string `json:"task_id"`
}

// QueueRunner 异步执行器：任务丢进 asynq 队列，由 worker 消费。
// 入队成功即向调用方返回，结果通过任务记录查询。
type QueueRunner struct {
	client *asynq.Client
	exec   *Executor
	cfg    *config.Config
}

func NewQueueRunner(exec *Executor, cfg *config.Config) *QueueRunner {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	return &QueueRunner{client: client, exec: exec, cfg: cfg}
}

func (r *QueueRunner) Dispatch(ctx context.Context, taskID string) (*Outcome, error) {
	payload, err := json.Marshal(TaskPayload{TaskID: taskID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypePipelineTask, payload,
		asynq.MaxRetry(0),                 // 重试在执行器内部做，队列层不再重复
		asynq.Timeout(60*time.Minute),     // 推理服务较慢，放宽超时
		asynq.Retention(24*time.Hour),     // 任务结果在 Redis 的保留时间
	)

	info, err := r.client.Enqueue(task)
	if err != nil {
		return nil, fmt.Errorf("enqueue failed: %w", err)
	}

	logger.Info("任务已入队",
		zap.String("task", taskID),
		zap.String("queue_id", info.ID))

	return &Outcome{
		Status:  OutcomeSuccess,
		Message: "任务已提交，处理中",
		TaskID:  taskID,
	}, nil
}

func (r *QueueRunner) Close() error {
	return r.client.Close()
}

// StartProcessor 启动任务消费者
func (r *QueueRunner) StartProcessor(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     r.cfg.Redis.Addr,
			Password: r.cfg.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePipelineTask, r.handleTask)

	logger.Info("启动任务消费者", zap.Int("concurrency", concurrency))
	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Fatal("任务消费者启动失败", zap.Error(err))
		}
	}()
}

func (r *QueueRunner) handleTask(ctx context.Context, t *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	// 业务失败已经记录在任务行里了，这里返回 nil 避免 asynq 自己再重试
	if _, err := r.exec.Run(ctx, payload.TaskID); err != nil {
		logger.Error("队列任务执行失败",
			zap.String("task", payload.TaskID),
			zap.Error(err))
	}
	return nil
}
