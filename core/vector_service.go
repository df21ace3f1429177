package core

import "context"

// VectorService 是向量检索服务的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（vector）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//   - 避免循环依赖：领域层不依赖基础设施层
//
// 使用场景：
//   - 验证阶段：根据 User Embedding 检索 Top-K Item Embeddings
//
// 实现：
//   - vector.FlatIndex 实现此接口（文件工件支撑的暴力检索）
//   - 其他向量数据库（Milvus、Faiss 服务等）也可以实现此接口
type VectorService interface {
	// Search 向量搜索
	Search(ctx context.Context, req *VectorSearchRequest) (*VectorSearchResult, error)

	// Close 关闭/释放资源
	Close() error
}

// VectorSearchRequest 向量搜索请求
type VectorSearchRequest struct {
	// Vector 查询向量
	Vector []float64

	// TopK 返回 TopK 个最相似的结果
	TopK int

	// Metric 距离度量方式：cosine / inner_product
	Metric string
}

// VectorSearchItem 单个向量搜索结果项
type VectorSearchItem struct {
	// ID 物品假名 id
	ID string

	// Index 物品在工件数组中的下标（与 ids/embeddings 工件同序）
	Index int

	// Score 相似度分数
	Score float64
}

// VectorSearchResult 向量搜索结果
type VectorSearchResult struct {
	// Items 搜索结果项列表（按相似度降序）
	Items []VectorSearchItem
}

// ValidateVectorMetric 验证距离度量类型
func ValidateVectorMetric(metric string) bool {
	switch metric {
	case "cosine", "inner_product":
		return true
	default:
		return false
	}
}

// IndexArtifacts 是磁盘上的三件套索引工件路径：
// 序列化索引、与索引同序的物品 id 数组、原始物品嵌入数组。
// 重建方必须原子替换（write-then-rename），避免读方观察到半写状态。
type IndexArtifacts struct {
	IndexPath      string
	IDsPath        string
	EmbeddingsPath string
}

// IndexRebuildRequest 索引重建请求。
type IndexRebuildRequest struct {
	// ModelPath 来源检查点目录（model_epoch_<N>）；重建使用该
	// 检查点的模型状态编码全量物品。
	ModelPath string
}

// IndexBuilder 是索引重建服务的领域接口。
// 检查点保存触发重建；重建失败由调用方记录日志并继续。
type IndexBuilder interface {
	Rebuild(ctx context.Context, req *IndexRebuildRequest) error
}
