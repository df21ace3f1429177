package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/rushteam/recomtext/core"
)

// FlatIndex 是文件工件支撑的暴力向量索引。
//
// 设计原则：
//   - 索引由三件套工件支撑：序列化索引、同序物品 id 数组、原始嵌入数组
//   - 重建方整体原子替换工件（write-then-rename），读方不会观察到半写状态
//   - 线程安全：验证读与重建写可能并发发生在不同进程
//
// 使用场景：
//   - 验证阶段 Top-K 检索（平替 Faiss 等外部向量服务）
type FlatIndex struct {
	mu      sync.RWMutex
	metric  string
	dim     int
	ids     []string
	vectors [][]float64 // 检索向量（单位 L2 范数）
	raw     [][]float64 // 原始嵌入（与 ids 同序）
}

// New 从 (ids, 嵌入) 构建索引。嵌入在内部归一化后用于检索，
// 原始值按同序保留。
func New(ids []string, embeddings [][]float64, metric string) (*FlatIndex, error) {
	if len(ids) != len(embeddings) {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
			"vector: ids and embeddings length mismatch")
	}
	if !core.ValidateVectorMetric(metric) {
		metric = "cosine"
	}
	dim := 0
	if len(embeddings) > 0 {
		dim = len(embeddings[0])
	}
	return &FlatIndex{
		metric:  metric,
		dim:     dim,
		ids:     append([]string(nil), ids...),
		vectors: core.NormalizeAll(embeddings),
		raw:     embeddings,
	}, nil
}

// Search 实现 core.VectorService 接口：暴力计算相似度，返回 TopK。
func (idx *FlatIndex) Search(ctx context.Context, req *core.VectorSearchRequest) (*core.VectorSearchResult, error) {
	if req == nil {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
			"vector: search request is nil")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(req.Vector) != idx.dim {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
			"vector: query dimension mismatch")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	metric := req.Metric
	if metric == "" {
		metric = idx.metric
	}

	type scored struct {
		i     int
		score float64
	}
	results := make([]scored, 0, len(idx.vectors))
	for i, v := range idx.vectors {
		var s float64
		switch metric {
		case "inner_product":
			s = core.Dot(req.Vector, v)
		default: // cosine
			s = core.CosineSimilarity(req.Vector, v)
		}
		results = append(results, scored{i: i, score: s})
	}

	sort.Slice(results, func(a, b int) bool {
		return results[a].score > results[b].score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	items := make([]core.VectorSearchItem, len(results))
	for i, r := range results {
		items[i] = core.VectorSearchItem{
			ID:    idx.ids[r.i],
			Index: r.i,
			Score: r.score,
		}
	}
	return &core.VectorSearchResult{Items: items}, nil
}

// Close 实现 core.VectorService 接口。
func (idx *FlatIndex) Close() error {
	return nil
}

// Len 返回索引条目数。
func (idx *FlatIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Dim 返回向量维度。
func (idx *FlatIndex) Dim() int { return idx.dim }

// ID 返回下标 i 处的物品 id。
func (idx *FlatIndex) ID(i int) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ids[i]
}

// RawEmbedding 返回下标 i 处的原始嵌入（与 ids 工件同序）。
func (idx *FlatIndex) RawEmbedding(i int) []float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.raw[i]
}

// 确保实现了接口
var _ core.VectorService = (*FlatIndex)(nil)
