package train

import "math"

// 组合损失：contrastive(items, users) + λ_rec · recommendation(users, items)。
// 输入是已归一化的嵌入；梯度也是对归一化嵌入的，原始尺度的换算由
// 模型在 Step 中完成。

// LossResult 是一次组合损失计算的值与梯度。
type LossResult struct {
	Total          float64
	Contrastive    float64
	Recommendation float64

	// GradItems/GradUsers 是对归一化嵌入的梯度，逐行对应批内样本
	GradItems [][]float64
	GradUsers [][]float64
}

// ComputeLoss 在归一化嵌入上计算组合损失及梯度。
//
// contrastive：以批内循环右移一位作为正样本对（物品、用户两组各自
// 计算后求和）。有效监督依赖批顺序，批流不做洗牌。
// recommendation：相似度矩阵 U·Iᵀ 配 arange 标签的 softmax 交叉熵
// （批内对齐 (user_i, item_i) 为正例的标准框架）。
func ComputeLoss(items, users [][]float64, lambdaRec float64) *LossResult {
	n := len(items)
	res := &LossResult{
		GradItems: zeroGrads(items),
		GradUsers: zeroGrads(users),
	}
	if n == 0 {
		return res
	}

	res.Contrastive = contrastiveLoss(items, res.GradItems) + contrastiveLoss(users, res.GradUsers)
	res.Recommendation = recommendationLoss(users, items, lambdaRec, res.GradUsers, res.GradItems)
	res.Total = res.Contrastive + lambdaRec*res.Recommendation
	return res
}

// contrastiveLoss 计算单组嵌入的余弦嵌入损失（目标恒为正对）：
// mean_i (1 - x_i·x_{i-1})，下标按批内循环。梯度累加进 grads。
func contrastiveLoss(rows [][]float64, grads [][]float64) float64 {
	n := len(rows)
	if n == 0 {
		return 0
	}
	inv := 1.0 / float64(n)

	var loss float64
	for i := 0; i < n; i++ {
		prev := rows[(i-1+n)%n]
		loss += 1 - dot(rows[i], prev)
	}
	loss *= inv

	// x_i 出现在对 (x_i, x_{i-1}) 与 (x_{i+1}, x_i) 中
	for i := 0; i < n; i++ {
		prev := rows[(i-1+n)%n]
		next := rows[(i+1)%n]
		for d := range grads[i] {
			grads[i][d] += -(prev[d] + next[d]) * inv
		}
	}
	return loss
}

// recommendationLoss 计算相似度矩阵交叉熵并把 λ 加权梯度累加进
// gradUsers/gradItems。返回未加权的损失值（加权在 Total 中体现）。
func recommendationLoss(users, items [][]float64, lambda float64, gradUsers, gradItems [][]float64) float64 {
	n := len(users)
	if n == 0 {
		return 0
	}
	inv := 1.0 / float64(n)

	var loss float64
	for i := 0; i < n; i++ {
		logits := make([]float64, n)
		for j := 0; j < n; j++ {
			logits[j] = dot(users[i], items[j])
		}
		probs := softmax(logits)
		loss += -math.Log(math.Max(probs[i], 1e-12))

		// dCE/dlogit_j = p_j - δ_ij；链式回传到两组嵌入
		for j := 0; j < n; j++ {
			coef := probs[j]
			if j == i {
				coef -= 1
			}
			coef *= inv * lambda
			for d := range gradUsers[i] {
				gradUsers[i][d] += coef * items[j][d]
				gradItems[j][d] += coef * users[i][d]
			}
		}
	}
	return loss * inv
}

func softmax(logits []float64) []float64 {
	maxv := logits[0]
	for _, v := range logits[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func zeroGrads(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
	}
	return out
}
