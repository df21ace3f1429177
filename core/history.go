package core

// 派生的历史工件。全部是输入数据的纯函数，每次流水线运行整体重算，
// 不做增量更新。

// OwnerHistory 是一个假名所有者按 PushedAt 升序排列的物品 id 序列。
// 只保留拥有多于一个物品的所有者（单物品历史没有序列信号）。
type OwnerHistory struct {
	OwnerHash string   // 所有者假名 id
	ItemIDs   []string // 物品假名 id，按最后更新时间升序
}

// OwnerTextualProfile 是一个所有者的文本画像：
// 成员物品描述以 "query: " 角色前缀拼接，外加遇到的主语言列表。
type OwnerTextualProfile struct {
	OwnerHash        string
	DetailedView     string   // "query: " + 成员描述以 " ; " 连接
	PrimaryLanguages []string // 按成员顺序保留的主语言（可含空串）
}

// UserDescription 是一个所有者的聚合统计自然语言摘要，
// 以 "passage: " 角色前缀标记用于嵌入。
type UserDescription struct {
	OwnerHash   string
	Description string
}

// ItemInfo 是推理/验证侧的物品信息行。
type ItemInfo struct {
	ItemID          string // 物品假名 id
	Item            string // 原始 nameWithOwner
	Description     string
	PrimaryLanguage string // 缺失时为 "unknown"
	LanguageID      int64  // 数值语言 id，缺失时为 -1
	Languages       []LanguageUsage
	Topics          []string
}

// Category 返回验证指标使用的物品类目（此处即主语言）。
func (it *ItemInfo) Category() string {
	return it.PrimaryLanguage
}

// HistoryArtifacts 是 HistoryBuilder 的完整输出。
type HistoryArtifacts struct {
	SortedHistories  []OwnerHistory
	TextualProfiles  []OwnerTextualProfile
	UserDescriptions []UserDescription
	Items            []ItemInfo

	// 两张映射侧表：物品 id → 稠密整数下标，语言名 → 稠密语言 id
	ItemIndex  map[string]int64
	LanguageID map[string]int64
}
