package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"souniq-server/config"
	"souniq-server/logger"

	"go.uber.org/zap"
)

// ServiceDescriptor 远程服务的自描述元数据。descriptor 接口时不时返回
// 非 JSON 内容，所以它只能当参考，不能当依赖。
type ServiceDescriptor struct {
	NamedEndpoints []string `json:"named_endpoints"`
	Version        string   `json:"version"`
}

// Options 客户端的公共调优参数
type Options struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	HTTPClient   *http.Client
	// Sleep 注入点，测试里替换掉真实等待
	Sleep func(time.Duration)
}

// Client 一个远程推理服务的逻辑客户端
type Client struct {
	name         string
	baseURL      string
	apiPath      string
	fileParam    string
	timeout      time.Duration
	maxAttempts  int
	retryDelay   time.Duration
	pollInterval time.Duration
	httpc        *http.Client
	sleep        func(time.Duration)

	desc         ServiceDescriptor
	descFallback bool
}

// NewClient 构造逻辑客户端。descriptor 获取失败或内容损坏时装一个最小
// 回退描述符，构造必须成功 —— 调用路径不依赖 descriptor。
func NewClient(name string, svc config.ServiceConfig, opts Options) *Client {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 20 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	c := &Client{
		name:         name,
		baseURL:      svc.BaseURL,
		apiPath:      svc.APIPath,
		fileParam:    svc.FileParam,
		timeout:      svc.Timeout(),
		maxAttempts:  opts.MaxAttempts,
		retryDelay:   opts.RetryDelay,
		pollInterval: opts.PollInterval,
		httpc:        opts.HTTPClient,
		sleep:        opts.Sleep,
	}
	c.loadDescriptor()
	return c
}

func (c *Client) loadDescriptor() {
	fallback := ServiceDescriptor{NamedEndpoints: []string{c.apiPath}}

	resp, err := c.httpc.Get(c.baseURL + "/info")
	if err != nil {
		logger.Warn("获取服务描述失败，使用回退描述符",
			zap.String("service", c.name), zap.Error(err))
		c.desc, c.descFallback = fallback, true
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("读取服务描述失败，使用回退描述符",
			zap.String("service", c.name), zap.Error(err))
		c.desc, c.descFallback = fallback, true
		return
	}

	var desc ServiceDescriptor
	if err := json.Unmarshal(body, &desc); err != nil {
		// descriptor 损坏是已知的上游问题，换成最小描述符继续走调用路径
		logger.Warn("服务描述不是合法 JSON，使用回退描述符",
			zap.String("service", c.name), zap.Error(err))
		c.desc, c.descFallback = fallback, true
		return
	}
	c.desc = desc
}

// DescriptorFallback 构造时是否走了回退路径
func (c *Client) DescriptorFallback() bool {
	return c.descFallback
}

// Invoke 执行一次完整的远程调用：上传文件、提交参数、轮询结果。
// 瞬时错误按固定间隔重试，最多 maxAttempts 次；其余错误立即上抛。
func (c *Client) Invoke(ctx context.Context, filePath string, params map[string]interface{}) ([]ResultEntry, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		entries, err := c.invokeOnce(ctx, filePath, params)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
		if attempt < c.maxAttempts {
			logger.Warn("远程调用失败，准备重试",
				zap.String("service", c.name),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Error(err))
			c.sleep(c.retryDelay)
		}
	}
	return nil, fmt.Errorf("%s: %d 次尝试后仍失败: %w", c.name, c.maxAttempts, lastErr)
}

func (c *Client) invokeOnce(ctx context.Context, filePath string, params map[string]interface{}) ([]ResultEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ref, err := c.uploadFile(ctx, filePath)
	if err != nil {
		return nil, err
	}

	jobID, err := c.submit(ctx, ref, params)
	if err != nil {
		return nil, err
	}

	return c.pollJob(ctx, jobID)
}

// uploadFile 把本地文件推到服务端，返回服务端引用路径
func (c *Client) uploadFile(ctx context.Context, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", permanentErr(err, "打开本地文件失败: %s", filePath)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("files", filepath.Base(filePath))
	if err != nil {
		return "", permanentErr(err, "构造上传请求失败")
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", permanentErr(err, "读取本地文件失败")
	}
	if err := w.Close(); err != nil {
		return "", permanentErr(err, "构造上传请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return "", permanentErr(err, "构造上传请求失败")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", transientErr(err, "上传请求失败")
	}
	defer resp.Body.Close()
	if err := checkStatus(resp.StatusCode, "upload"); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transientErr(err, "读取上传响应失败")
	}
	// 上传接口历史上返回过 ["path"] 和 {"path": "..."} 两种形态
	var paths []string
	if err := json.Unmarshal(body, &paths); err == nil && len(paths) > 0 {
		return paths[0], nil
	}
	var obj struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.Path != "" {
		return obj.Path, nil
	}
	return "", permanentErr(nil, "上传响应缺少文件引用: %s", string(body))
}

// submit 以精确的参数名提交调用，返回 job id
func (c *Client) submit(ctx context.Context, fileRef string, params map[string]interface{}) (string, error) {
	body := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		body[k] = v
	}
	body[c.fileParam] = fileRef

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", permanentErr(err, "序列化请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.apiPath, bytes.NewReader(jsonBody))
	if err != nil {
		return "", permanentErr(err, "构造提交请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", transientErr(err, "提交请求失败")
	}
	defer resp.Body.Close()
	if err := checkStatus(resp.StatusCode, "submit"); err != nil {
		return "", err
	}

	var respData map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", transientErr(err, "解析提交响应失败")
	}
	for _, key := range []string{"job_id", "event_id", "id"} {
		if id, ok := respData[key].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", permanentErr(nil, "提交响应缺少 job id")
}

// pollJob 轮询直到任务终态，归一化结果条目
func (c *Client) pollJob(ctx context.Context, jobID string) ([]ResultEntry, error) {
	jobURL := fmt.Sprintf("%s/jobs/%s", c.baseURL, jobID)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, transientErr(ctx.Err(), "%s: 轮询超时", c.name)
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
			if err != nil {
				return nil, permanentErr(err, "构造轮询请求失败")
			}
			resp, err := c.httpc.Do(req)
			if err != nil {
				// 轮询中的网络抖动继续等下一个 tick，整体超时由 ctx 兜底
				logger.Debug("轮询网络错误", zap.String("service", c.name), zap.Error(err))
				continue
			}

			var job struct {
				Status string            `json:"status"`
				Data   []json.RawMessage `json:"data"`
				Error  string            `json:"error"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&job)
			resp.Body.Close()
			if decodeErr != nil {
				logger.Debug("轮询响应解析失败", zap.String("service", c.name), zap.Error(decodeErr))
				continue
			}

			switch job.Status {
			case "completed", "finished", "success", "succeeded":
				return DecodeEntries(job.Data), nil
			case "failed", "error":
				return nil, permanentErr(nil, "%s: 远程服务报告失败: %s", c.name, job.Error)
			}
			// 其他状态继续轮询
		}
	}
}

func checkStatus(code int, stage string) error {
	switch {
	case code == http.StatusOK || code == http.StatusCreated || code == http.StatusAccepted:
		return nil
	case code >= 500:
		return transientErr(nil, "%s status code: %d", stage, code)
	default:
		return permanentErr(nil, "%s status code: %d", stage, code)
	}
}
