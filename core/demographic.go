package core

import "context"

// 人口统计特征名。验证阶段对每个 (特征, 组) 构建质心。
const (
	FeatureAgeGroup = "age_group"
	FeatureSex      = "sex"
	FeatureRegion   = "region"
)

// DemographicFeatures 是参与质心构建的特征全集（顺序固定）。
func DemographicFeatures() []string {
	return []string{FeatureAgeGroup, FeatureSex, FeatureRegion}
}

// DemographicProfile 是一个用户的人口统计画像。
// 组值可为空串，表示该特征缺失；缺失的特征不参与该用户的 DAS。
type DemographicProfile struct {
	UserHash string // 用户假名 id
	AgeGroup string
	Sex      string
	Region   string
}

// Group 按特征名取组值。
func (p *DemographicProfile) Group(feature string) string {
	switch feature {
	case FeatureAgeGroup:
		return p.AgeGroup
	case FeatureSex:
		return p.Sex
	case FeatureRegion:
		return p.Region
	default:
		return ""
	}
}

// Groups 返回该用户全部非空 (特征 → 组值) 映射。
func (p *DemographicProfile) Groups() map[string]string {
	out := make(map[string]string, 3)
	for _, f := range DemographicFeatures() {
		if g := p.Group(f); g != "" {
			out[f] = g
		}
	}
	return out
}

// DemographicSource 是人口统计数据的领域接口。
//
// 实现：
//   - store.SQLiteStore（ArtifactStore 自带画像表）
//   - eval.FeastSource（feast 在线特征）
//
// 任一实现加载失败都视为可恢复：验证降级为不含 DAS 的指标子集。
type DemographicSource interface {
	// Profiles 返回全部可用画像。数据不可用时返回 UNAVAILABLE。
	Profiles(ctx context.Context) ([]DemographicProfile, error)
}

// DemographicCentroids 是 (特征 → 组值 → 质心向量) 的两级映射。
// 每次验证调用整体重建；零匹配用户的组没有条目（而非零向量占位）。
type DemographicCentroids map[string]map[string][]float64

// Centroid 取 (feature, group) 的质心；不存在时返回 (nil, false)。
func (c DemographicCentroids) Centroid(feature, group string) ([]float64, bool) {
	byGroup, ok := c[feature]
	if !ok {
		return nil, false
	}
	v, ok := byGroup[group]
	return v, ok
}
