package train

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/rushteam/recomtext/core"
)

// Validator 对训练后的当前模型执行一轮验证。modelPath 指向最近一次
// 保存的检查点目录，仅供按需重建索引使用；模型本身取 mdl（内存态，
// 含本轮更新）。返回 (nil, nil) 表示本轮验证被跳过，训练状态不受影响。
type Validator interface {
	Validate(ctx context.Context, mdl core.EmbeddingModel, modelPath string) (core.Metrics, error)
}

// Config 是训练循环参数
type Config struct {
	Epochs        int
	LambdaRec     float64
	Patience      int
	CheckpointDir string
}

func (c *Config) applyDefaults() {
	if c.Epochs <= 0 {
		c.Epochs = 10
	}
	if c.LambdaRec <= 0 {
		c.LambdaRec = 0.4
	}
	if c.Patience <= 0 {
		c.Patience = 3
	}
}

// RunResult 汇总一次训练的结果
type RunResult struct {
	EpochsRun    int
	BestEpoch    int
	BestMetric   float64
	EarlyStopped bool
	LastModelDir string
}

// Trainer 驱动训练循环：逐轮训练、按轮验证、按 contextual_ndcg
// 严格提升保存检查点并重建索引、连续未提升达到 patience 即早停。
//
// 设计原则：
//   - 验证失败或被跳过不影响早停计数与最佳指标
//   - 索引重建失败只记录日志，不中断训练
//   - 第 0 轮结束后无条件保存一次检查点，保证索引重建有检查点可用
type Trainer struct {
	model     core.TrainableModel
	source    core.BatchSource
	validator Validator
	indexer   core.IndexBuilder
	ckpt      *Checkpointer
	cfg       Config
	logger    *zap.Logger
}

func NewTrainer(model core.TrainableModel, source core.BatchSource, validator Validator, indexer core.IndexBuilder, cfg Config, logger *zap.Logger) *Trainer {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		model:     model,
		source:    source,
		validator: validator,
		indexer:   indexer,
		ckpt:      NewCheckpointer(cfg.CheckpointDir),
		cfg:       cfg,
		logger:    logger,
	}
}

// Run 执行完整训练，返回运行摘要
func (t *Trainer) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{
		BestEpoch:  -1,
		BestMetric: math.Inf(-1),
	}
	noImprovement := 0

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		trainMetrics, err := t.trainEpoch(ctx)
		if err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		res.EpochsRun = epoch + 1
		t.logger.Info("epoch finished",
			zap.Int("epoch", epoch),
			zap.Float64("loss", trainMetrics[core.MetricLoss]),
			zap.Float64("contrastive_loss", trainMetrics[core.MetricContrastiveLoss]),
			zap.Float64("recommendation_loss", trainMetrics[core.MetricRecommendationLoss]),
		)

		if epoch == 0 {
			dir, err := t.saveCheckpoint(ctx, epoch, nil)
			if err != nil {
				return res, err
			}
			res.LastModelDir = dir
		}

		if t.validator == nil {
			continue
		}
		valMetrics, err := t.validator.Validate(ctx, t.model, res.LastModelDir)
		if err != nil {
			t.logger.Warn("validation failed, skipping epoch",
				zap.Int("epoch", epoch), zap.Error(err))
			continue
		}
		if valMetrics == nil {
			t.logger.Warn("validation skipped", zap.Int("epoch", epoch))
			continue
		}

		current := valMetrics[core.MetricContextualNDCG]
		t.logger.Info("validation finished",
			zap.Int("epoch", epoch),
			zap.Float64("contextual_ndcg", current),
			zap.Float64("val_loss", valMetrics[core.MetricValLoss]),
		)

		if current > res.BestMetric {
			res.BestMetric = current
			res.BestEpoch = epoch
			noImprovement = 0
			dir, err := t.saveCheckpoint(ctx, epoch, valMetrics)
			if err != nil {
				return res, err
			}
			res.LastModelDir = dir
		} else {
			noImprovement++
			if noImprovement >= t.cfg.Patience {
				t.logger.Info("early stopping",
					zap.Int("epoch", epoch),
					zap.Int("patience", t.cfg.Patience),
					zap.Int("best_epoch", res.BestEpoch),
				)
				res.EarlyStopped = true
				return res, nil
			}
		}
	}
	return res, nil
}

// trainEpoch 跑一遍训练集，返回按批平均的训练指标
func (t *Trainer) trainEpoch(ctx context.Context) (core.Metrics, error) {
	t.source.Reset()
	sum := core.Metrics{}
	batches := 0

	for {
		batch, ok := t.source.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, users, err := t.model.Forward(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("forward: %w", err)
		}
		loss := ComputeLoss(core.NormalizeAll(items), core.NormalizeAll(users), t.cfg.LambdaRec)
		t.model.Step(batch, loss.GradItems, loss.GradUsers)

		sum.Add(core.Metrics{
			core.MetricLoss:               loss.Total,
			core.MetricContrastiveLoss:    loss.Contrastive,
			core.MetricRecommendationLoss: loss.Recommendation,
		})
		batches++
	}
	if batches > 0 {
		sum.Scale(1 / float64(batches))
	}
	return sum, nil
}

// saveCheckpoint 保存检查点并触发索引重建；重建失败只告警
func (t *Trainer) saveCheckpoint(ctx context.Context, epoch int, metrics core.Metrics) (string, error) {
	dir, err := t.ckpt.Save(epoch, t.model, metrics)
	if err != nil {
		return "", core.NewDomainError(core.ModuleTrain, core.ErrorCodeInternalError,
			fmt.Sprintf("save checkpoint for epoch %d: %v", epoch, err))
	}
	t.logger.Info("checkpoint saved", zap.Int("epoch", epoch), zap.String("dir", dir))

	if t.indexer != nil {
		if err := t.indexer.Rebuild(ctx, &core.IndexRebuildRequest{ModelPath: dir}); err != nil {
			t.logger.Warn("index rebuild failed", zap.Int("epoch", epoch), zap.Error(err))
		}
	}
	return dir, nil
}
