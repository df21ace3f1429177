// Package recomtext 是一个基于文本嵌入的推荐模型训练与评估工具包。
//
// 流水线分为三个阶段：
//   - 预处理：原始交互记录 → 排序历史 / 文本画像 / 用户聚合描述等派生工件
//   - 训练：双塔嵌入模型，组合损失（对比 + 推荐），按 contextual_ndcg 早停
//   - 验证：向量检索 Top-K，语义精度 / 跨类目相关性 / ndcg / 人口统计对齐
package recomtext

import (
	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/history"
	"github.com/rushteam/recomtext/train"
)

// 轻量 facade：便于用户直接 import "recomtext" 使用核心抽象。
type InteractionRecord = core.InteractionRecord
type HistoryArtifacts = core.HistoryArtifacts
type Batch = core.Batch
type BatchSource = core.BatchSource
type EmbeddingModel = core.EmbeddingModel
type TrainableModel = core.TrainableModel
type VectorService = core.VectorService
type Metrics = core.Metrics

type HistoryBuilder = history.Builder
type Trainer = train.Trainer

var (
	NewHistoryBuilder = history.NewBuilder
	NewTrainer        = train.NewTrainer
	PseudonymousID    = history.PseudonymousID
)
