package eval

import "github.com/rushteam/recomtext/core"

// BuildCentroids 按 (特征, 组) 聚合验证用户嵌入并取均值质心。
// 每轮验证整体重建；没有任何用户匹配的组不产生条目。
func BuildCentroids(profiles []core.DemographicProfile, userEmbeddings map[string][]float64) core.DemographicCentroids {
	buckets := make(map[string]map[string][][]float64)
	for _, f := range core.DemographicFeatures() {
		buckets[f] = make(map[string][][]float64)
	}

	for i := range profiles {
		p := &profiles[i]
		emb, ok := userEmbeddings[p.UserHash]
		if !ok {
			continue
		}
		for feature, group := range p.Groups() {
			buckets[feature][group] = append(buckets[feature][group], emb)
		}
	}

	centroids := make(core.DemographicCentroids)
	for feature, byGroup := range buckets {
		for group, embs := range byGroup {
			if len(embs) == 0 {
				continue
			}
			if centroids[feature] == nil {
				centroids[feature] = make(map[string][]float64)
			}
			centroids[feature][group] = core.Normalize(core.MeanVector(embs))
		}
	}
	return centroids
}
