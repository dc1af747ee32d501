package gateway

import (
	"context"

	"souniq-server/config"
)

// Gateway 三个远程推理服务的统一门面
type Gateway interface {
	// Separate 整曲分离，正常返回 7 路按固定顺序排列的音频结果
	Separate(ctx context.Context, audioPath string) ([]ResultEntry, error)
	// ConvertToMIDI 单 stem 转 MIDI
	ConvertToMIDI(ctx context.Context, audioPath string) (ResultEntry, error)
	// Generate 基于 MIDI 生成新素材，返回最多 8 个候选音频槽位
	Generate(ctx context.Context, midiPath string, params GenerationParams) ([]ResultEntry, error)
}

// GenerationParams 生成服务的参数。线上的参数名/类型是外部契约，
// wire() 里的 key 必须和服务端完全一致。
type GenerationParams struct {
	ApplySustains              bool
	RemoveDuplicatePitches     bool
	RemoveOverlappingDurations bool
	PrimeInstruments           []string
	NumPrimeTokens             int
	NumGenTokens               int
	ModelTemperature           float64
	ModelTopP                  float64
	AddDrums                   bool
	AddOutro                   bool
}

func (p GenerationParams) wire() map[string]interface{} {
	instruments := p.PrimeInstruments
	if instruments == nil {
		instruments = []string{}
	}
	return map[string]interface{}{
		"apply_sustains":               p.ApplySustains,
		"remove_duplicate_pitches":     p.RemoveDuplicatePitches,
		"remove_overlapping_durations": p.RemoveOverlappingDurations,
		"prime_instruments":            instruments,
		"num_prime_tokens":             p.NumPrimeTokens,
		"num_gen_tokens":               p.NumGenTokens,
		"model_temperature":            p.ModelTemperature,
		"model_top_p":                  p.ModelTopP,
		"add_drums":                    p.AddDrums,
		"add_outro":                    p.AddOutro,
	}
}

// Remote 生产实现：每个服务一个独立客户端
type Remote struct {
	separation *Client
	conversion *Client
	generation *Client
}

// New 按配置构造三个服务客户端
func New(cfg *config.Config) *Remote {
	opts := Options{
		MaxAttempts:  cfg.Gateway.MaxAttempts,
		RetryDelay:   cfg.RetryDelay(),
		PollInterval: cfg.PollInterval(),
	}
	return &Remote{
		separation: NewClient("separation", cfg.Gateway.Separation, opts),
		conversion: NewClient("conversion", cfg.Gateway.Conversion, opts),
		generation: NewClient("generation", cfg.Gateway.Generation, opts),
	}
}

func (r *Remote) Separate(ctx context.Context, audioPath string) ([]ResultEntry, error) {
	return r.separation.Invoke(ctx, audioPath, nil)
}

func (r *Remote) ConvertToMIDI(ctx context.Context, audioPath string) (ResultEntry, error) {
	entries, err := r.conversion.Invoke(ctx, audioPath, nil)
	if err != nil {
		return ResultEntry{}, err
	}
	if len(entries) == 0 {
		return ResultEntry{}, permanentErr(nil, "conversion: 服务未返回结果")
	}
	return entries[0], nil
}

func (r *Remote) Generate(ctx context.Context, midiPath string, params GenerationParams) ([]ResultEntry, error) {
	entries, err := r.generation.Invoke(ctx, midiPath, params.wire())
	if err != nil {
		return nil, err
	}
	return AudioSlots(entries), nil
}
