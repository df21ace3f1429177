package model

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"unicode"

	"github.com/rushteam/recomtext/core"
)

// TwoTower 是哈希特征两塔嵌入模型（User Tower + Item Tower）。
//
// 核心思想：
//   - 文本经分词 + 特征哈希映射到桶，嵌入为桶向量的归一和
//   - 数值 id 经取模映射到 id 桶，提供记忆性偏置
//   - 两塔各自独立参数，相似度由调用方在归一化嵌入上计算
//
// 工程特征：
//   - 前向为线性查表求和，推理开销极低
//   - 梯度对嵌入是直接可加的，SGD 更新回散到命中的桶向量
//   - 固定 seed 下初始化与前向完全确定
type TwoTower struct {
	dim         int
	textBuckets int
	idBuckets   int
	lr          float64

	// 参数：文本桶矩阵与 id 桶矩阵，物品塔/用户塔各一套
	itemText [][]float64
	itemID   [][]float64
	userText [][]float64
	userID   [][]float64

	// 最近一次 Forward 的原始输出，Step 通过它把归一化梯度换回原始尺度
	lastItems [][]float64
	lastUsers [][]float64
}

// Config 是两塔模型的构建参数。零值字段取默认。
type Config struct {
	Dim          int     // 嵌入维度，默认 64
	TextBuckets  int     // 文本哈希桶数，默认 4096
	IDBuckets    int     // id 桶数，默认 4096
	LearningRate float64 // SGD 学习率，默认 0.05
	Seed         int64   // 初始化种子
}

func (c *Config) applyDefaults() {
	if c.Dim <= 0 {
		c.Dim = 64
	}
	if c.TextBuckets <= 0 {
		c.TextBuckets = 4096
	}
	if c.IDBuckets <= 0 {
		c.IDBuckets = 4096
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.05
	}
}

// NewTwoTower 创建并确定性初始化一个两塔模型。
func NewTwoTower(cfg Config) *TwoTower {
	cfg.applyDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))

	initMatrix := func(rows int) [][]float64 {
		m := make([][]float64, rows)
		for i := range m {
			m[i] = make([]float64, cfg.Dim)
			for d := 0; d < cfg.Dim; d++ {
				m[i][d] = (rng.Float64() - 0.5) / float64(cfg.Dim)
			}
		}
		return m
	}

	return &TwoTower{
		dim:         cfg.Dim,
		textBuckets: cfg.TextBuckets,
		idBuckets:   cfg.IDBuckets,
		lr:          cfg.LearningRate,
		itemText:    initMatrix(cfg.TextBuckets),
		itemID:      initMatrix(cfg.IDBuckets),
		userText:    initMatrix(cfg.TextBuckets),
		userID:      initMatrix(cfg.IDBuckets),
	}
}

// Dim 返回嵌入维度。
func (m *TwoTower) Dim() int { return m.dim }

// Forward 实现 core.EmbeddingModel：逐样本编码两塔原始嵌入。
func (m *TwoTower) Forward(ctx context.Context, batch *core.Batch) ([][]float64, [][]float64, error) {
	n := batch.Size()
	items := make([][]float64, n)
	users := make([][]float64, n)
	for i := 0; i < n; i++ {
		items[i] = m.encode(m.itemText, m.itemID, batch.ItemTexts[i], batch.ItemIDs[i])
		users[i] = m.encode(m.userText, m.userID, batch.UserTexts[i], batch.UserIDs[i])
	}
	m.lastItems = items
	m.lastUsers = users
	return items, users, nil
}

// EncodeItem 编码单个物品侧原始嵌入（建索引/推理用，不缓存）。
// 只读模型权重，可并发调用。
func (m *TwoTower) EncodeItem(text string, numericID int64) []float64 {
	return m.encode(m.itemText, m.itemID, text, numericID)
}

// encode 计算单个样本的原始嵌入：文本桶向量均方根归一和 + id 桶向量。
func (m *TwoTower) encode(text, id [][]float64, s string, numericID int64) []float64 {
	out := make([]float64, m.dim)
	toks := tokenize(s)
	if len(toks) > 0 {
		scale := 1.0 / math.Sqrt(float64(len(toks)))
		for _, tok := range toks {
			row := text[bucket(tok, m.textBuckets)]
			for d := 0; d < m.dim; d++ {
				out[d] += row[d] * scale
			}
		}
	}
	idRow := id[idBucket(numericID, m.idBuckets)]
	for d := 0; d < m.dim; d++ {
		out[d] += idRow[d]
	}
	return out
}

// Step 实现 core.TrainableModel：接收损失对归一化嵌入的梯度，
// 经归一化反传换回原始尺度后，按 SGD 回散到命中的桶向量。
func (m *TwoTower) Step(batch *core.Batch, gradItems, gradUsers [][]float64) {
	n := batch.Size()
	for i := 0; i < n; i++ {
		if i < len(m.lastItems) && i < len(gradItems) {
			g := normBackward(m.lastItems[i], gradItems[i])
			m.applyGrad(m.itemText, m.itemID, batch.ItemTexts[i], batch.ItemIDs[i], g)
		}
		if i < len(m.lastUsers) && i < len(gradUsers) {
			g := normBackward(m.lastUsers[i], gradUsers[i])
			m.applyGrad(m.userText, m.userID, batch.UserTexts[i], batch.UserIDs[i], g)
		}
	}
}

// applyGrad 把嵌入梯度按前向的贡献系数回散到参数行。
func (m *TwoTower) applyGrad(text, id [][]float64, s string, numericID int64, g []float64) {
	toks := tokenize(s)
	if len(toks) > 0 {
		scale := 1.0 / math.Sqrt(float64(len(toks)))
		for _, tok := range toks {
			row := text[bucket(tok, m.textBuckets)]
			for d := 0; d < m.dim; d++ {
				row[d] -= m.lr * g[d] * scale
			}
		}
	}
	idRow := id[idBucket(numericID, m.idBuckets)]
	for d := 0; d < m.dim; d++ {
		idRow[d] -= m.lr * g[d]
	}
}

// normBackward 是 L2 归一化的反向传播：
// 给定原始向量 x 与对 x̂=x/‖x‖ 的梯度 g，返回对 x 的梯度
// (g - (g·x̂)x̂)/‖x‖。零向量时原样返回 g。
func normBackward(raw, g []float64) []float64 {
	n := core.Norm(raw)
	if n == 0 {
		out := make([]float64, len(g))
		copy(out, g)
		return out
	}
	unit := core.Normalize(raw)
	proj := core.Dot(g, unit)
	out := make([]float64, len(g))
	for d := range g {
		out[d] = (g[d] - proj*unit[d]) / n
	}
	return out
}

// tokenize 小写化并按非字母数字切分。
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func bucket(tok string, buckets int) int {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return int(h.Sum32() % uint32(buckets))
}

func idBucket(id int64, buckets int) int {
	if id < 0 {
		id = -id
	}
	return int(id % int64(buckets))
}

// 确保实现了接口
var _ core.TrainableModel = (*TwoTower)(nil)
