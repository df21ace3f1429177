package core

import (
	"context"
	"math"
)

// Batch 是一批训练/验证样本：(物品文本, 用户文本, 物品 id, 用户 id)。
// 四个切片长度一致；数值 id 经映射侧表得到，字符串 key 为假名 id。
type Batch struct {
	ItemTexts []string
	UserTexts []string
	ItemIDs   []int64
	UserIDs   []int64

	ItemKeys []string // 物品假名 id（解析目标类目用）
	UserKeys []string // 用户假名 id（人口统计查找用）
}

// Size 返回批大小。
func (b *Batch) Size() int {
	return len(b.ItemTexts)
}

// BatchSource 是批流的领域接口。批按来源产出的顺序处理；
// Reset 重置到流的起点，供下一个 epoch 复用。
type BatchSource interface {
	Next() (*Batch, bool)
	Reset()
	Len() int
}

// EmbeddingModel 将 (物品文本, 用户文本, 物品 id, 用户 id) 批映射为
// 一对嵌入集合。返回的向量未归一化，由调用方做 L2 归一。
type EmbeddingModel interface {
	// Forward 前向传播，返回 (物品嵌入, 用户嵌入)，每行对应批内一个样本。
	Forward(ctx context.Context, batch *Batch) (items, users [][]float64, err error)

	// Dim 返回嵌入维度。
	Dim() int
}

// TrainableModel 是可训练的嵌入模型：接收关于归一化输出的梯度并
// 执行一步优化；支持把模型状态保存到检查点目录 / 从目录恢复。
type TrainableModel interface {
	EmbeddingModel

	// Step 应用一步梯度更新。gradItems/gradUsers 是损失对归一化后
	// 嵌入的梯度，与 Forward 的输出逐行对应。
	Step(batch *Batch, gradItems, gradUsers [][]float64)

	// Save 将模型状态写入目录（检查点布局 model_epoch_<N>/）。
	Save(dir string) error

	// Load 从目录恢复模型状态。
	Load(dir string) error
}

// 向量基础运算。嵌入是领域对象，基础运算放在领域层统一提供。

// Dot 计算向量内积。
func Dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm 计算向量 L2 范数。
func Norm(a []float64) float64 {
	var sum float64
	for _, v := range a {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Normalize 返回 a 的单位 L2 范数副本。零向量原样返回副本。
// 对已经是单位范数的向量是幂等的。
func Normalize(a []float64) []float64 {
	out := make([]float64, len(a))
	n := Norm(a)
	if n == 0 {
		copy(out, a)
		return out
	}
	for i, v := range a {
		out[i] = v / n
	}
	return out
}

// NormalizeAll 对每一行做 L2 归一，返回新矩阵。
func NormalizeAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = Normalize(r)
	}
	return out
}

// CosineSimilarity 计算余弦相似度。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// MeanVector 计算若干向量的均值；输入为空时返回 nil。
func MeanVector(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([]float64, len(rows[0]))
	for _, r := range rows {
		for i, v := range r {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(rows))
	}
	return out
}
