package core

// Metrics 是一次训练/验证产出的标量指标集合。
type Metrics map[string]float64

// 标准指标键名。
const (
	MetricLoss                  = "loss"
	MetricContrastiveLoss       = "contrastive_loss"
	MetricRecommendationLoss    = "recommendation_loss"
	MetricValLoss               = "val_loss"
	MetricValContrastiveLoss    = "val_contrastive_loss"
	MetricValRecommendationLoss = "val_recommendation_loss"
	MetricCrossCategory         = "cross_category_relevance"
	MetricContextualNDCG        = "contextual_ndcg"
	MetricDASPrefix             = "das_" // das_age_group / das_sex / das_region / das_overall
)

// Add 将 other 的每个键累加到 m。缺失键按 0 起始。
func (m Metrics) Add(other Metrics) {
	for k, v := range other {
		m[k] += v
	}
}

// Scale 将每个值乘以 f，返回 m 自身。
func (m Metrics) Scale(f float64) Metrics {
	for k := range m {
		m[k] *= f
	}
	return m
}

// Clone 返回 m 的浅拷贝。
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
