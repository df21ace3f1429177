// Package metrics 实现推荐质量指标套件：语义精度、跨类目相关性、
// 上下文 NDCG 与人口统计对齐分（DAS）。
package metrics

import (
	"math"

	"github.com/rushteam/recomtext/core"
)

// DefaultSimThreshold 是"语义相关"判定的默认余弦阈值。
const DefaultSimThreshold = 0.7

// Calculator 计算单个用户一次推荐集合的各项指标。
type Calculator struct {
	// SimThreshold 语义相关阈值：相似度达到该值的推荐即使类目
	// 不同也视为相关。
	SimThreshold float64
}

// NewCalculator 创建指标计算器，阈值为 0 时取默认值。
func NewCalculator(simThreshold float64) *Calculator {
	if simThreshold <= 0 {
		simThreshold = DefaultSimThreshold
	}
	return &Calculator{SimThreshold: simThreshold}
}

// SemanticPrecisionAtK 计算 semantic_precision@K：推荐类目与目标类目
// 一致的条目按嵌入相似度加权，除以 K。
func (c *Calculator) SemanticPrecisionAtK(sims []float64, categories []string, target string, k int) float64 {
	k = clampK(k, len(sims))
	if k == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < k; i++ {
		if categories[i] == target {
			sum += positive(sims[i])
		}
	}
	return sum / float64(k)
}

// CrossCategoryRelevance 计算跨类目相关性：类目不同但语义相似度达到
// 阈值的推荐（"惊喜但相关"），按相似度加权，除以 K。
func (c *Calculator) CrossCategoryRelevance(sims []float64, categories []string, target string, k int) float64 {
	k = clampK(k, len(sims))
	if k == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < k; i++ {
		if categories[i] != target && sims[i] >= c.SimThreshold {
			sum += sims[i]
		}
	}
	return sum / float64(k)
}

// ContextualNDCG 计算上下文 NDCG：位置折扣的分级相关性除以理想排序。
// 相关性分级：类目一致 = 1.0；类目不同但相似度达阈值 = 0.5；其余 = 0。
func (c *Calculator) ContextualNDCG(sims []float64, categories []string, target string, k int) float64 {
	k = clampK(k, len(sims))
	if k == 0 {
		return 0
	}
	rels := make([]float64, k)
	for i := 0; i < k; i++ {
		switch {
		case categories[i] == target:
			rels[i] = 1.0
		case sims[i] >= c.SimThreshold:
			rels[i] = 0.5
		}
	}

	dcg := dcgAt(rels)

	ideal := make([]float64, len(rels))
	copy(ideal, rels)
	sortDesc(ideal)
	idcg := dcgAt(ideal)

	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// DemographicAlignmentScore 计算 DAS：用户推荐物品嵌入的均值向量与
// 自身组质心的相似度相对其他组质心的余弦差值（margin），映射到 [0,1]。
//
// 每个特征产出 das_<feature>；至少一个特征可计算时附带 das_overall。
// 用户组缺失质心（零匹配用户的组）时该特征不产出指标。
func (c *Calculator) DemographicAlignmentScore(
	groups map[string]string,
	recEmbeddings [][]float64,
	centroids core.DemographicCentroids,
) core.Metrics {
	out := make(core.Metrics)
	if len(recEmbeddings) == 0 || len(centroids) == 0 {
		return out
	}

	mean := core.Normalize(core.MeanVector(recEmbeddings))

	var total float64
	var counted int
	for feature, group := range groups {
		own, ok := centroids.Centroid(feature, group)
		if !ok {
			continue
		}
		ownSim := core.CosineSimilarity(mean, own)

		var otherSum float64
		var others int
		for g, centroid := range centroids[feature] {
			if g == group {
				continue
			}
			otherSum += core.CosineSimilarity(mean, centroid)
			others++
		}
		otherMean := 0.0
		if others > 0 {
			otherMean = otherSum / float64(others)
		}

		das := clamp01((1 + ownSim - otherMean) / 2)
		out[core.MetricDASPrefix+feature] = das
		total += das
		counted++
	}
	if counted > 0 {
		out[core.MetricDASPrefix+"overall"] = total / float64(counted)
	}
	return out
}

func dcgAt(rels []float64) float64 {
	var dcg float64
	for i, rel := range rels {
		dcg += rel / math.Log2(float64(i)+2)
	}
	return dcg
}

func sortDesc(vals []float64) {
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j] > vals[j-1]; j-- {
			vals[j], vals[j-1] = vals[j-1], vals[j]
		}
	}
}

func clampK(k, n int) int {
	if k <= 0 || k > n {
		return n
	}
	return k
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
