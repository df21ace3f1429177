package eval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/metrics"
	"github.com/rushteam/recomtext/model"
	"github.com/rushteam/recomtext/train"
	"github.com/rushteam/recomtext/vector"
)

// Config 是验证引擎参数
type Config struct {
	// Artifacts 三件套索引工件路径
	Artifacts core.IndexArtifacts

	// Metric 检索度量（cosine / inner_product）
	Metric string

	// TopK 检索深度（ndcg / cross_category / DAS 在此深度上计算）
	TopK int

	// Ks semantic_precision 的截断点集合
	Ks []int

	// SimThreshold 语义相似阈值
	SimThreshold float64

	// LambdaRec 组合损失权重（与训练一致）
	LambdaRec float64
}

func (c *Config) applyDefaults() {
	if c.Metric == "" {
		c.Metric = "cosine"
	}
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if len(c.Ks) == 0 {
		c.Ks = []int{1, 5, 10}
	}
	if c.SimThreshold <= 0 {
		c.SimThreshold = metrics.DefaultSimThreshold
	}
	if c.LambdaRec <= 0 {
		c.LambdaRec = 0.4
	}
}

// Engine 是验证引擎：在检查点上计算验证损失与检索质量指标。
//
// 降级语义：
//   - 索引工件缺失时按需重建；重建失败跳过本轮（返回 nil 指标）
//   - 人口统计源不可用时继续验证，只是不产出 das_* 指标
//   - 跳过的一轮不影响训练侧的早停计数与最佳指标
type Engine struct {
	source  core.BatchSource
	meta    core.MetadataStore
	demo    core.DemographicSource
	indexer core.IndexBuilder
	calc    *metrics.Calculator
	cfg     Config
	logger  *zap.Logger

	// LoadModel 从检查点目录恢复模型，仅在 Validate 未传入内存态模型
	// 时使用（离线评估已保存的检查点）。默认恢复双塔模型，测试可替换
	LoadModel func(dir string) (core.EmbeddingModel, error)
}

func NewEngine(source core.BatchSource, meta core.MetadataStore, demo core.DemographicSource, indexer core.IndexBuilder, cfg Config, logger *zap.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:    source,
		meta:      meta,
		demo:      demo,
		indexer:   indexer,
		calc:      metrics.NewCalculator(cfg.SimThreshold),
		cfg:       cfg,
		logger:    logger,
		LoadModel: loadTwoTower,
	}
}

func loadTwoTower(dir string) (core.EmbeddingModel, error) {
	m := model.NewTwoTower(model.Config{})
	if err := m.Load(dir); err != nil {
		return nil, err
	}
	return m, nil
}

// userEval 是单个验证用户的中间结果
type userEval struct {
	hash          string
	target        string
	sims          []float64
	categories    []string
	recEmbeddings [][]float64
}

// Validate 对 mdl（当前内存态模型）执行一轮验证；mdl 为 nil 时从
// modelPath 检查点恢复模型。modelPath 同时用于索引工件缺失时的
// 按需重建。返回 (nil, nil) 表示本轮被跳过。
func (e *Engine) Validate(ctx context.Context, mdl core.EmbeddingModel, modelPath string) (core.Metrics, error) {
	idx, ok := e.openIndex(ctx, modelPath)
	if !ok {
		return nil, nil
	}
	defer idx.Close()

	if mdl == nil {
		var err error
		mdl, err = e.LoadModel(modelPath)
		if err != nil {
			return nil, fmt.Errorf("load model from %s: %w", modelPath, err)
		}
	}

	lossMetrics, evals, userEmbeddings, err := e.forwardPass(ctx, idx, mdl)
	if err != nil {
		return nil, err
	}
	if len(evals) == 0 {
		e.logger.Warn("no validation users, skipping epoch")
		return nil, nil
	}

	centroids, profiles := e.buildCentroids(ctx, userEmbeddings)

	result := e.aggregateUserMetrics(evals, centroids, profiles)
	result.Add(lossMetrics)
	return result, nil
}

// openIndex 打开索引，必要时按需重建。失败返回 ok=false（跳过本轮）。
func (e *Engine) openIndex(ctx context.Context, modelPath string) (*vector.FlatIndex, bool) {
	if !vector.ArtifactsExist(e.cfg.Artifacts) {
		if e.indexer == nil {
			e.logger.Warn("index artifacts missing and no builder configured")
			return nil, false
		}
		if err := e.indexer.Rebuild(ctx, &core.IndexRebuildRequest{ModelPath: modelPath}); err != nil {
			e.logger.Warn("on-demand index rebuild failed, skipping validation", zap.Error(err))
			return nil, false
		}
	}
	idx, err := vector.Load(e.cfg.Artifacts)
	if err != nil {
		e.logger.Warn("load index artifacts failed, skipping validation", zap.Error(err))
		return nil, false
	}
	return idx, true
}

// forwardPass 过一遍验证批流：按批计算验证损失，按用户检索 Top-K。
func (e *Engine) forwardPass(ctx context.Context, idx *vector.FlatIndex, mdl core.EmbeddingModel) (core.Metrics, []userEval, map[string][]float64, error) {
	lossSum := core.Metrics{}
	batches := 0
	var evals []userEval
	userEmbeddings := make(map[string][]float64)

	e.source.Reset()
	for {
		batch, ok := e.source.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}

		items, users, err := mdl.Forward(ctx, batch)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("forward: %w", err)
		}
		itemsN := core.NormalizeAll(items)
		usersN := core.NormalizeAll(users)

		loss := train.ComputeLoss(itemsN, usersN, e.cfg.LambdaRec)
		lossSum.Add(core.Metrics{
			core.MetricValLoss:               loss.Total,
			core.MetricValContrastiveLoss:    loss.Contrastive,
			core.MetricValRecommendationLoss: loss.Recommendation,
		})
		batches++

		for i := range usersN {
			res, err := idx.Search(ctx, &core.VectorSearchRequest{
				Vector: usersN[i],
				TopK:   e.cfg.TopK,
				Metric: e.cfg.Metric,
			})
			if err != nil {
				return nil, nil, nil, fmt.Errorf("search: %w", err)
			}

			ue := userEval{
				hash:   batch.UserKeys[i],
				target: e.categoryOf(ctx, batch.ItemKeys[i]),
			}
			for _, item := range res.Items {
				ue.sims = append(ue.sims, item.Score)
				ue.categories = append(ue.categories, e.categoryOf(ctx, item.ID))
				ue.recEmbeddings = append(ue.recEmbeddings, idx.RawEmbedding(item.Index))
			}
			evals = append(evals, ue)
			userEmbeddings[ue.hash] = usersN[i]
		}
	}

	if batches > 0 {
		lossSum.Scale(1 / float64(batches))
	}
	return lossSum, evals, userEmbeddings, nil
}

// buildCentroids 加载画像并构建质心；画像不可用时返回 nil（降级）
func (e *Engine) buildCentroids(ctx context.Context, userEmbeddings map[string][]float64) (core.DemographicCentroids, []core.DemographicProfile) {
	if e.demo == nil {
		return nil, nil
	}
	profiles, err := e.demo.Profiles(ctx)
	if err != nil {
		e.logger.Warn("demographics unavailable, alignment metrics disabled", zap.Error(err))
		return nil, nil
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return BuildCentroids(profiles, userEmbeddings), profiles
}

// aggregateUserMetrics 逐用户计算检索指标并按键求均值。
// das_* 只对画像可用的用户产出，均值按产出该键的用户数分摊。
func (e *Engine) aggregateUserMetrics(evals []userEval, centroids core.DemographicCentroids, profiles []core.DemographicProfile) core.Metrics {
	byHash := make(map[string]*core.DemographicProfile, len(profiles))
	for i := range profiles {
		byHash[profiles[i].UserHash] = &profiles[i]
	}

	sums := core.Metrics{}
	counts := make(map[string]int)
	for _, ue := range evals {
		m := core.Metrics{}
		for _, k := range e.cfg.Ks {
			m[semanticPrecisionKey(k)] = e.calc.SemanticPrecisionAtK(ue.sims, ue.categories, ue.target, k)
		}
		m[core.MetricCrossCategory] = e.calc.CrossCategoryRelevance(ue.sims, ue.categories, ue.target, e.cfg.TopK)
		m[core.MetricContextualNDCG] = e.calc.ContextualNDCG(ue.sims, ue.categories, ue.target, e.cfg.TopK)

		if centroids != nil {
			if p, ok := byHash[ue.hash]; ok {
				m.Add(e.calc.DemographicAlignmentScore(p.Groups(), ue.recEmbeddings, centroids))
			}
		}

		for k, v := range m {
			sums[k] += v
			counts[k]++
		}
	}

	out := make(core.Metrics, len(sums))
	for k, v := range sums {
		out[k] = v / float64(counts[k])
	}
	return out
}

// categoryOf 解析物品的目标类目；解析失败视为未知类目
func (e *Engine) categoryOf(ctx context.Context, itemID string) string {
	info, err := e.meta.GetItem(ctx, itemID)
	if err != nil {
		return ""
	}
	return info.Category()
}

func semanticPrecisionKey(k int) string {
	return fmt.Sprintf("semantic_precision@%d", k)
}

var _ train.Validator = (*Engine)(nil)
