package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 是 pivoice 的顶层配置结构。
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Audio      AudioConfig      `yaml:"audio"`
	Features   FeaturesConfig   `yaml:"features"`
	Voiceprint VoiceprintConfig `yaml:"voiceprint"`
	ASR        ASRConfig        `yaml:"asr"`
	Commands   CommandsConfig   `yaml:"commands"`
	Log        LogConfig        `yaml:"log"`
}

// AudioConfig 麦克风采集配置。
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	FrameSize     int     `yaml:"frame_size"`
	RecordSeconds float64 `yaml:"record_seconds"` // 每次录音时长
	Beep          bool    `yaml:"beep"`           // 录音前播放提示音
}

// FeaturesConfig 声学特征提取参数。
type FeaturesConfig struct {
	FrameLength  int     `yaml:"frame_length"`
	HopLength    int     `yaml:"hop_length"`
	NumMels      int     `yaml:"n_mels"`
	PitchMinHz   float64 `yaml:"pitch_min_hz"`
	PitchMaxHz   float64 `yaml:"pitch_max_hz"`
	YinThreshold float64 `yaml:"yin_threshold"`
}

// VoiceprintConfig 声纹注册与验证配置。
type VoiceprintConfig struct {
	StoreFile string  `yaml:"store_file"` // 特征表 CSV 路径，默认 <data_dir>/voice_data.csv
	Threshold float64 `yaml:"threshold"`  // 相似度阈值（百分比），严格大于才算匹配
	Rounds    int     `yaml:"rounds"`     // 每个用户注册录音轮数
	// MatchMode 取值 first（第一个超过阈值的条目）或 best（得分最高的条目）。
	MatchMode string `yaml:"match_mode"`
}

// ASRConfig 语音识别配置。
type ASRConfig struct {
	// Priority 引擎优先级，可选 tencent-flash、tencent-rt、sherpa。
	Priority       []string      `yaml:"priority"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	MaxRetries     int           `yaml:"max_retries"`
	Tencent        TencentConfig `yaml:"tencent"`
	Sherpa         SherpaConfig  `yaml:"sherpa"`
}

// TencentConfig 腾讯云一句话识别配置。
type TencentConfig struct {
	SecretID   string `yaml:"secret_id"`
	SecretKey  string `yaml:"secret_key"`
	AppID      string `yaml:"app_id"` // 实时语音识别（tencent-rt）需要
	Region     string `yaml:"region"`
	EngineType string `yaml:"engine_type"` // 如 16k_en、16k_zh
}

// SherpaConfig 本地 sherpa-onnx 流式识别模型配置。
type SherpaConfig struct {
	ModelPath  string `yaml:"model_path"`
	NumThreads int    `yaml:"num_threads"`
}

// CommandsConfig 语音指令表配置。
type CommandsConfig struct {
	BaseURL        string         `yaml:"base_url"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	Table          []CommandEntry `yaml:"table"` // 为空时使用内置 LED 指令表
}

// CommandEntry 一条指令：短语 → URL。
type CommandEntry struct {
	Phrase string `yaml:"phrase"`
	URL    string `yaml:"url"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// LoadDotEnv 加载 .env 文件中的环境变量，文件不存在时忽略。
// 已存在的环境变量不会被覆盖。
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("加载环境变量文件 %s 失败: %w", p, err)
		}
	}
	return nil
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置内容并填充默认值。
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回全部使用默认值的配置。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	cfg.DataDir = expandHome(cfg.DataDir)
	if cfg.DataDir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.DataDir = filepath.Join(home, ".pivoice")
		} else {
			cfg.DataDir = "./.pivoice-data"
		}
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 44100
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 2
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = 1024
	}
	if cfg.Audio.RecordSeconds == 0 {
		cfg.Audio.RecordSeconds = 2
	}

	if cfg.Features.FrameLength == 0 {
		cfg.Features.FrameLength = 2048
	}
	if cfg.Features.HopLength == 0 {
		cfg.Features.HopLength = 512
	}
	if cfg.Features.NumMels == 0 {
		cfg.Features.NumMels = 128
	}
	if cfg.Features.PitchMinHz == 0 {
		cfg.Features.PitchMinHz = 65.406 // C2
	}
	if cfg.Features.PitchMaxHz == 0 {
		cfg.Features.PitchMaxHz = 2093.005 // C7
	}
	if cfg.Features.YinThreshold == 0 {
		cfg.Features.YinThreshold = 0.1
	}

	if cfg.Voiceprint.StoreFile == "" {
		cfg.Voiceprint.StoreFile = filepath.Join(cfg.DataDir, "voice_data.csv")
	} else {
		cfg.Voiceprint.StoreFile = expandHome(cfg.Voiceprint.StoreFile)
	}
	if cfg.Voiceprint.Threshold == 0 {
		cfg.Voiceprint.Threshold = 70
	}
	if cfg.Voiceprint.Rounds == 0 {
		cfg.Voiceprint.Rounds = 3
	}
	cfg.Voiceprint.MatchMode = strings.ToLower(strings.TrimSpace(cfg.Voiceprint.MatchMode))
	if cfg.Voiceprint.MatchMode == "" {
		cfg.Voiceprint.MatchMode = "first"
	}

	if len(cfg.ASR.Priority) == 0 {
		cfg.ASR.Priority = []string{"tencent-flash", "sherpa"}
	}
	if cfg.ASR.TimeoutSeconds == 0 {
		cfg.ASR.TimeoutSeconds = 5
	}
	if cfg.ASR.MaxRetries == 0 {
		cfg.ASR.MaxRetries = 2
	}
	if cfg.ASR.Tencent.Region == "" {
		cfg.ASR.Tencent.Region = "ap-guangzhou"
	}
	if cfg.ASR.Tencent.EngineType == "" {
		cfg.ASR.Tencent.EngineType = "16k_en"
	}
	if cfg.ASR.Sherpa.NumThreads == 0 {
		cfg.ASR.Sherpa.NumThreads = 2
	}
	cfg.ASR.Sherpa.ModelPath = expandHome(cfg.ASR.Sherpa.ModelPath)

	if cfg.Commands.TimeoutSeconds == 0 {
		cfg.Commands.TimeoutSeconds = 5
	}
	cfg.Commands.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.Commands.BaseURL), "/")

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.File = expandHome(cfg.Log.File)

	// 去除密钥两端可能的空白（环境变量展开后常见）
	cfg.ASR.Tencent.SecretID = strings.TrimSpace(cfg.ASR.Tencent.SecretID)
	cfg.ASR.Tencent.SecretKey = strings.TrimSpace(cfg.ASR.Tencent.SecretKey)
	cfg.ASR.Tencent.AppID = strings.TrimSpace(cfg.ASR.Tencent.AppID)
}

func validate(cfg *Config) error {
	switch cfg.Voiceprint.MatchMode {
	case "first", "best":
	default:
		return fmt.Errorf("不支持的匹配模式: %s（可选 first、best）", cfg.Voiceprint.MatchMode)
	}
	if cfg.Voiceprint.Threshold < 0 || cfg.Voiceprint.Threshold > 100 {
		return fmt.Errorf("相似度阈值必须在 0~100 之间，当前: %.2f", cfg.Voiceprint.Threshold)
	}
	// 条目键是用户名加一位轮次数字
	if cfg.Voiceprint.Rounds < 0 || cfg.Voiceprint.Rounds > 10 {
		return fmt.Errorf("注册轮数必须在 1~10 之间: %d", cfg.Voiceprint.Rounds)
	}
	if cfg.Features.PitchMinHz >= cfg.Features.PitchMaxHz {
		return fmt.Errorf("音高搜索范围无效: [%.2f, %.2f]", cfg.Features.PitchMinHz, cfg.Features.PitchMaxHz)
	}
	for i, c := range cfg.Commands.Table {
		if strings.TrimSpace(c.Phrase) == "" || strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("指令表第 %d 项缺少 phrase 或 url", i+1)
		}
	}
	return nil
}

// expandHome 将 ~/ 前缀替换为用户主目录（Go 不会自动展开 ~）。
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}
