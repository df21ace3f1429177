package dataset

import (
	"fmt"
	"strings"

	"github.com/rushteam/recomtext/core"
)

// 文本角色标记与拼接符，同预处理侧保持一致
const (
	partSeparator = " ; "
	passagePrefix = "passage: "
)

// Config 是批流构建参数
type Config struct {
	// BatchSize 批大小
	BatchSize int

	// ValFraction 验证集比例（按所有者切分，取尾部）
	ValFraction float64
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.ValFraction <= 0 || c.ValFraction >= 1 {
		c.ValFraction = 0.1
	}
}

// sample 是一个 (用户, 目标物品) 训练样本
type sample struct {
	itemText string
	userText string
	itemID   int64
	userID   int64
	itemKey  string
	userKey  string
}

// Source 是确定性的顺序批流。样本顺序由工件的所有者顺序决定，
// 不做洗牌：对比损失的正样本对取决于批内排列，顺序即语义。
type Source struct {
	samples   []sample
	batchSize int
	pos       int
}

var _ core.BatchSource = (*Source)(nil)

// Next 产出下一批；流耗尽时返回 (nil, false)
func (s *Source) Next() (*core.Batch, bool) {
	if s.pos >= len(s.samples) {
		return nil, false
	}
	end := s.pos + s.batchSize
	if end > len(s.samples) {
		end = len(s.samples)
	}
	chunk := s.samples[s.pos:end]
	s.pos = end

	batch := &core.Batch{
		ItemTexts: make([]string, len(chunk)),
		UserTexts: make([]string, len(chunk)),
		ItemIDs:   make([]int64, len(chunk)),
		UserIDs:   make([]int64, len(chunk)),
		ItemKeys:  make([]string, len(chunk)),
		UserKeys:  make([]string, len(chunk)),
	}
	for i, sm := range chunk {
		batch.ItemTexts[i] = sm.itemText
		batch.UserTexts[i] = sm.userText
		batch.ItemIDs[i] = sm.itemID
		batch.UserIDs[i] = sm.userID
		batch.ItemKeys[i] = sm.itemKey
		batch.UserKeys[i] = sm.userKey
	}
	return batch, true
}

// Reset 重置到流起点
func (s *Source) Reset() {
	s.pos = 0
}

// Len 返回批数
func (s *Source) Len() int {
	if s.batchSize == 0 {
		return 0
	}
	return (len(s.samples) + s.batchSize - 1) / s.batchSize
}

// Samples 返回样本数
func (s *Source) Samples() int {
	return len(s.samples)
}

// Build 从派生工件构建训练/验证批流。
//
// 每个排序历史所有者产出一个样本：用户侧取其详细文本历史，
// 物品侧取历史中最近（最后）一个物品的聚合描述作为目标。
// 切分按所有者顺序进行，尾部 ValFraction 归验证集。
func Build(arts *core.HistoryArtifacts, cfg Config) (trainSrc, valSrc *Source, err error) {
	cfg.applyDefaults()

	profileByOwner := make(map[string]*core.OwnerTextualProfile, len(arts.TextualProfiles))
	for i := range arts.TextualProfiles {
		profileByOwner[arts.TextualProfiles[i].OwnerHash] = &arts.TextualProfiles[i]
	}
	itemByID := make(map[string]*core.ItemInfo, len(arts.Items))
	for i := range arts.Items {
		itemByID[arts.Items[i].ItemID] = &arts.Items[i]
	}

	samples := make([]sample, 0, len(arts.SortedHistories))
	for _, h := range arts.SortedHistories {
		if len(h.ItemIDs) == 0 {
			continue
		}
		profile, ok := profileByOwner[h.OwnerHash]
		if !ok {
			continue
		}
		targetKey := h.ItemIDs[len(h.ItemIDs)-1]
		info, ok := itemByID[targetKey]
		if !ok {
			continue
		}
		itemID, ok := arts.ItemIndex[targetKey]
		if !ok {
			continue
		}
		samples = append(samples, sample{
			itemText: ItemPassage(info),
			userText: profile.DetailedView,
			itemID:   itemID,
			userID:   int64(len(samples)),
			itemKey:  targetKey,
			userKey:  h.OwnerHash,
		})
	}
	if len(samples) == 0 {
		return nil, nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
			"no usable samples in history artifacts")
	}

	nVal := int(float64(len(samples)) * cfg.ValFraction)
	if nVal == 0 && len(samples) > 1 {
		nVal = 1
	}
	cut := len(samples) - nVal

	trainSrc = &Source{samples: samples[:cut], batchSize: cfg.BatchSize}
	valSrc = &Source{samples: samples[cut:], batchSize: cfg.BatchSize}
	return trainSrc, valSrc, nil
}

// ItemPassage 渲染物品的聚合描述文本（训练目标侧与建索引共用）
func ItemPassage(info *core.ItemInfo) string {
	var parts []string
	if info.Description != "" {
		parts = append(parts, "Description: "+info.Description)
	}
	if info.PrimaryLanguage != "" {
		parts = append(parts, "Primary language: "+info.PrimaryLanguage)
	}
	if len(info.Languages) > 0 {
		langs := make([]string, len(info.Languages))
		for i, l := range info.Languages {
			langs[i] = fmt.Sprintf("%s (%d bytes)", l.Name, l.Size)
		}
		parts = append(parts, "Languages used: "+strings.Join(langs, ", "))
	}
	if len(info.Topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(info.Topics, ", "))
	}
	return passagePrefix + strings.Join(parts, partSeparator)
}
