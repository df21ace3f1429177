package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/eval"
)

// Config 是全流程配置（预处理 / 训练 / 验证 / 建索引）。
// 所有字段都有可用默认值，配置文件只需覆盖关心的键。
type Config struct {
	Data         DataConfig         `yaml:"data"`
	Model        ModelConfig        `yaml:"model"`
	Training     TrainingConfig     `yaml:"training"`
	Evaluation   EvaluationConfig   `yaml:"evaluation"`
	Inference    InferenceConfig    `yaml:"inference"`
	Demographics DemographicsConfig `yaml:"demographics"`
	Store        StoreConfig        `yaml:"store"`
}

// DataConfig 是原始数据与切分配置
type DataConfig struct {
	// SourcePath 原始交互记录文件（json 行或数组）
	SourcePath string `yaml:"source_path"`

	// ValFraction 验证集比例（按所有者切分）
	ValFraction float64 `yaml:"val_fraction"`
}

// ModelConfig 是双塔模型结构参数
type ModelConfig struct {
	Dim         int   `yaml:"dim"`
	TextBuckets int   `yaml:"text_buckets"`
	IDBuckets   int   `yaml:"id_buckets"`
	Seed        int64 `yaml:"seed"`
}

// TrainingConfig 是训练循环参数
type TrainingConfig struct {
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	LearningRate  float64 `yaml:"learning_rate"`
	LambdaRec     float64 `yaml:"lambda_rec"`
	Patience      int     `yaml:"patience"`
	CheckpointDir string  `yaml:"checkpoint_dir"`
}

// EvaluationConfig 是验证指标参数
type EvaluationConfig struct {
	// Ks semantic_precision 截断点
	Ks []int `yaml:"ks"`

	// SimThreshold 语义相似阈值
	SimThreshold float64 `yaml:"sim_threshold"`

	// Metric 检索度量
	Metric string `yaml:"metric"`
}

// InferenceConfig 是推理/索引工件参数
type InferenceConfig struct {
	IndexPath      string `yaml:"index_path"`
	IDsPath        string `yaml:"ids_path"`
	EmbeddingsPath string `yaml:"embeddings_path"`
	TopK           int    `yaml:"top_k"`
}

// Artifacts 返回三件套索引工件路径
func (c *InferenceConfig) Artifacts() core.IndexArtifacts {
	return core.IndexArtifacts{
		IndexPath:      c.IndexPath,
		IDsPath:        c.IDsPath,
		EmbeddingsPath: c.EmbeddingsPath,
	}
}

// DemographicsConfig 是人口统计源配置。Source 为 none 时验证不产出
// das_* 指标。
type DemographicsConfig struct {
	// Source 画像来源：store / feast / none
	Source string `yaml:"source"`

	// Feast 在线特征服务（Source=feast 时生效）
	FeastHost    string `yaml:"feast_host"`
	FeastPort    int    `yaml:"feast_port"`
	FeastProject string `yaml:"feast_project"`

	// 组派生规则（CEL 表达式，空串用默认规则）
	Rules eval.RulesConfig `yaml:"rules"`
}

// StoreConfig 是工件存储配置
type StoreConfig struct {
	// Path sqlite 工件数据库路径
	Path string `yaml:"path"`

	// RedisAddr 非空时在元数据读路径前加 redis 缓存
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	// CacheTTLSeconds 缓存过期秒数
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// Default 返回带默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Data.SourcePath == "" {
		c.Data.SourcePath = "data/interactions.json"
	}
	if c.Data.ValFraction <= 0 || c.Data.ValFraction >= 1 {
		c.Data.ValFraction = 0.1
	}
	if c.Model.Dim <= 0 {
		c.Model.Dim = 64
	}
	if c.Model.TextBuckets <= 0 {
		c.Model.TextBuckets = 4096
	}
	if c.Model.IDBuckets <= 0 {
		c.Model.IDBuckets = 4096
	}
	if c.Training.Epochs <= 0 {
		c.Training.Epochs = 10
	}
	if c.Training.BatchSize <= 0 {
		c.Training.BatchSize = 32
	}
	if c.Training.LearningRate <= 0 {
		c.Training.LearningRate = 0.05
	}
	if c.Training.LambdaRec <= 0 {
		c.Training.LambdaRec = 0.4
	}
	if c.Training.Patience <= 0 {
		c.Training.Patience = 3
	}
	if c.Training.CheckpointDir == "" {
		c.Training.CheckpointDir = "checkpoints"
	}
	if len(c.Evaluation.Ks) == 0 {
		c.Evaluation.Ks = []int{1, 5, 10}
	}
	if c.Evaluation.SimThreshold <= 0 {
		c.Evaluation.SimThreshold = 0.7
	}
	if c.Evaluation.Metric == "" {
		c.Evaluation.Metric = "cosine"
	}
	if c.Inference.IndexPath == "" {
		c.Inference.IndexPath = "artifacts/index.gob"
	}
	if c.Inference.IDsPath == "" {
		c.Inference.IDsPath = "artifacts/ids.json"
	}
	if c.Inference.EmbeddingsPath == "" {
		c.Inference.EmbeddingsPath = "artifacts/embeddings.bin"
	}
	if c.Inference.TopK <= 0 {
		c.Inference.TopK = 10
	}
	if c.Demographics.Source == "" {
		c.Demographics.Source = "store"
	}
	if c.Demographics.FeastPort == 0 {
		c.Demographics.FeastPort = 6565
	}
	if c.Store.Path == "" {
		c.Store.Path = "artifacts/artifacts.db"
	}
	if c.Store.CacheTTLSeconds <= 0 {
		c.Store.CacheTTLSeconds = 3600
	}
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if !core.ValidateVectorMetric(c.Evaluation.Metric) {
		return fmt.Errorf("invalid evaluation.metric %q", c.Evaluation.Metric)
	}
	switch c.Demographics.Source {
	case "store", "feast", "none":
	default:
		return fmt.Errorf("invalid demographics.source %q", c.Demographics.Source)
	}
	for _, k := range c.Evaluation.Ks {
		if k <= 0 {
			return fmt.Errorf("evaluation.ks must be positive, got %d", k)
		}
	}
	return nil
}

// LoadFromYAML 从 YAML 文件加载配置，缺省键补默认值
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
