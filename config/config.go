package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ServiceConfig 描述一个远程推理服务的外部契约。
// endpoint 路径与参数 schema 跟随服务版本变化，必须固定在配置里，不允许写死在代码里。
type ServiceConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIPath        string `yaml:"api_path"`
	FileParam      string `yaml:"file_param"`
	TimeoutMinutes int    `yaml:"timeout_minutes"`
}

// GenerationDefaults 生成服务的默认参数（Orpheus schema）
type GenerationDefaults struct {
	NumPrimeTokens   int     `yaml:"num_prime_tokens"`
	NumGenTokens     int     `yaml:"num_gen_tokens"`
	ModelTemperature float64 `yaml:"model_temperature"`
	ModelTopP        float64 `yaml:"model_top_p"`
}

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
	Log struct {
		Level      string `yaml:"level"`
		OutputPath string `yaml:"output_path"`
	} `yaml:"log"`

	Gateway struct {
		MaxAttempts       int           `yaml:"max_attempts"`
		RetryDelaySeconds int           `yaml:"retry_delay_seconds"`
		PollSeconds       int           `yaml:"poll_seconds"`
		Separation        ServiceConfig `yaml:"separation"`
		Conversion        ServiceConfig `yaml:"conversion"`
		Generation        ServiceConfig `yaml:"generation"`
	} `yaml:"gateway"`

	Pipeline struct {
		// StemOrder 按位置把分离结果映射到 stem 类型。外部 API 的第 7 路叫
		// instrumental，系统内统一记作 clean。
		StemOrder          []string           `yaml:"stem_order"`
		TaskRetentionHours int                `yaml:"task_retention_hours"`
		Generation         GenerationDefaults `yaml:"generation"`
	} `yaml:"pipeline"`
}

var AppConfig *Config

// InitConfig 读取并解析配置文件，填充缺省值
func InitConfig(path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("配置文件读取失败: %v", err)
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	AppConfig = &Config{}
	if err := decoder.Decode(AppConfig); err != nil {
		log.Fatalf("配置文件解析失败: %v", err)
	}
	ApplyDefaults(AppConfig)
}

// ApplyDefaults 为零值字段填充缺省配置
func ApplyDefaults(c *Config) {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Gateway.MaxAttempts == 0 {
		c.Gateway.MaxAttempts = 3
	}
	if c.Gateway.RetryDelaySeconds == 0 {
		c.Gateway.RetryDelaySeconds = 20
	}
	if c.Gateway.PollSeconds == 0 {
		c.Gateway.PollSeconds = 3
	}
	if c.Gateway.Separation.TimeoutMinutes == 0 {
		c.Gateway.Separation.TimeoutMinutes = 20
	}
	if c.Gateway.Conversion.TimeoutMinutes == 0 {
		c.Gateway.Conversion.TimeoutMinutes = 20
	}
	if c.Gateway.Generation.TimeoutMinutes == 0 {
		c.Gateway.Generation.TimeoutMinutes = 30
	}
	if c.Gateway.Separation.APIPath == "" {
		c.Gateway.Separation.APIPath = "/predict"
	}
	if c.Gateway.Conversion.APIPath == "" {
		c.Gateway.Conversion.APIPath = "/predict"
	}
	if c.Gateway.Generation.APIPath == "" {
		c.Gateway.Generation.APIPath = "/generate_music_and_state"
	}
	if c.Gateway.Separation.FileParam == "" {
		c.Gateway.Separation.FileParam = "input_wav_path"
	}
	if c.Gateway.Conversion.FileParam == "" {
		c.Gateway.Conversion.FileParam = "input_wav_path"
	}
	if c.Gateway.Generation.FileParam == "" {
		c.Gateway.Generation.FileParam = "input_midi"
	}
	if len(c.Pipeline.StemOrder) == 0 {
		c.Pipeline.StemOrder = []string{"vocals", "drums", "bass", "guitar", "piano", "other", "clean"}
	}
	if c.Pipeline.TaskRetentionHours == 0 {
		c.Pipeline.TaskRetentionHours = 24
	}
	if c.Pipeline.Generation.NumPrimeTokens == 0 {
		c.Pipeline.Generation.NumPrimeTokens = 6656
	}
	if c.Pipeline.Generation.NumGenTokens == 0 {
		c.Pipeline.Generation.NumGenTokens = 512
	}
	if c.Pipeline.Generation.ModelTemperature == 0 {
		c.Pipeline.Generation.ModelTemperature = 0.9
	}
	if c.Pipeline.Generation.ModelTopP == 0 {
		c.Pipeline.Generation.ModelTopP = 0.96
	}
}

// RetryDelay 重试间隔
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Gateway.RetryDelaySeconds) * time.Second
}

// PollInterval 轮询间隔
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Gateway.PollSeconds) * time.Second
}

// TaskRetention 失败任务的保留时长
func (c *Config) TaskRetention() time.Duration {
	return time.Duration(c.Pipeline.TaskRetentionHours) * time.Hour
}

// Timeout 单次远程调用的客户端超时
func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}
