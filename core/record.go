package core

import "time"

// InteractionRecord 是一条用户-物品交互事实（此处为仓库归属记录）。
// Owner 与 Item 在假名化之前是稳定的字符串身份。
type InteractionRecord struct {
	Owner    string // 所有者身份（原始字符串）
	Item     string // 物品身份（nameWithOwner 形式）
	ItemName string // 物品短名

	Description     string          // 自由文本描述（可缺失，缺失时为空串）
	PrimaryLanguage string          // 主语言/类目（可缺失）
	Languages       []LanguageUsage // 按体积加权的子语言列表
	Topics          []Topic         // 主题/标签列表

	CreatedAt time.Time // 创建时间
	PushedAt  time.Time // 最后更新时间

	// 数值参与度字段，缺失时按 0 处理
	Stars    int64
	Forks    int64
	Watchers int64
	Commits  int64

	// 布尔标志，缺失时按 false 处理
	IsFork         bool
	IsArchived     bool
	ForkingAllowed bool
}

// LanguageUsage 是一个（语言/类目，权重）对，权重为字节数或等价体积。
type LanguageUsage struct {
	Name string
	Size int64
}

// TopicKind 标记 Topic 的原始结构形态。
type TopicKind int

const (
	// TopicFlat 表示扁平标签：["go", "ml"] 或 [{"name": "go"}]
	TopicFlat TopicKind = iota
	// TopicNested 表示嵌套标签：[{"name": {"name": "go"}}]
	TopicNested
)

// Topic 是标签的带标记变体（tagged variant）。
// 扁平/嵌套两种原始形态在解析阶段一次性归一，下游只做显式分支，
// 不再重复做类型内省。
type Topic struct {
	Kind  TopicKind
	Name  string // 扁平形态的名称，或嵌套形态的外层名称
	Inner string // 嵌套形态的内层名称；扁平形态为空
}

// Label 返回用于文本拼接的标签名：嵌套形态取内层名称。
func (t Topic) Label() string {
	if t.Kind == TopicNested && t.Inner != "" {
		return t.Inner
	}
	return t.Name
}

// FlatTopic 构造扁平标签。
func FlatTopic(name string) Topic {
	return Topic{Kind: TopicFlat, Name: name}
}

// NestedTopic 构造嵌套标签。
func NestedTopic(name, inner string) Topic {
	return Topic{Kind: TopicNested, Name: name, Inner: inner}
}
