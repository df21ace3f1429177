package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rushteam/recomtext/core"
)

// 文本拼接常量。"query:"/"passage:" 是嵌入模型的角色标记，
// 区分"待编码的历史"与"聚合描述"，必须原样保留。
const (
	partSeparator = " ; "
	queryPrefix   = "query: "
	passagePrefix = "passage: "
	topLanguages  = 3
)

// Builder 将原始交互记录转换为三类派生工件外加物品信息表。
// 全部转换是输入的纯函数，可重复执行得到相同输出。
type Builder struct{}

// NewBuilder 创建 HistoryBuilder。
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildAll 一次性产出全部派生工件。
func (b *Builder) BuildAll(records []core.InteractionRecord) *core.HistoryArtifacts {
	itemIndex, languageIDs := b.buildMappings(records)
	return &core.HistoryArtifacts{
		SortedHistories:  b.BuildSortedHistories(records),
		TextualProfiles:  b.BuildTextualProfiles(records),
		UserDescriptions: b.BuildUserDescriptions(records),
		Items:            b.BuildItems(records, languageIDs),
		ItemIndex:        itemIndex,
		LanguageID:       languageIDs,
	}
}

// BuildSortedHistories 产出排序 id 历史表：按假名所有者分组，
// 组内物品按 PushedAt 升序，仅保留拥有多于一个物品的所有者。
func (b *Builder) BuildSortedHistories(records []core.InteractionRecord) []core.OwnerHistory {
	sorted := make([]core.InteractionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PushedAt.Before(sorted[j].PushedAt)
	})

	groups := make(map[string][]string)
	order := make([]string, 0)
	for _, rec := range sorted {
		owner := PseudonymousID(rec.Owner)
		if _, seen := groups[owner]; !seen {
			order = append(order, owner)
		}
		groups[owner] = append(groups[owner], PseudonymousID(rec.Item))
	}

	out := make([]core.OwnerHistory, 0, len(order))
	for _, owner := range order {
		items := groups[owner]
		if len(items) <= 1 {
			continue
		}
		out = append(out, core.OwnerHistory{OwnerHash: owner, ItemIDs: items})
	}
	return out
}

// BuildTextualProfiles 产出详细文本历史表：逐条记录构建可读描述，
// 按所有者分组拼接并加 "query: " 角色前缀，保留主语言列表。
func (b *Builder) BuildTextualProfiles(records []core.InteractionRecord) []core.OwnerTextualProfile {
	type acc struct {
		views []string
		langs []string
	}
	groups := make(map[string]*acc)
	order := make([]string, 0)

	for _, rec := range records {
		owner := PseudonymousID(rec.Owner)
		a, seen := groups[owner]
		if !seen {
			a = &acc{}
			groups[owner] = a
			order = append(order, owner)
		}
		a.views = append(a.views, describeRecord(&rec))
		a.langs = append(a.langs, rec.PrimaryLanguage)
	}

	out := make([]core.OwnerTextualProfile, 0, len(order))
	for _, owner := range order {
		a := groups[owner]
		out = append(out, core.OwnerTextualProfile{
			OwnerHash:        owner,
			DetailedView:     queryPrefix + strings.Join(a.views, partSeparator),
			PrimaryLanguages: a.langs,
		})
	}
	return out
}

// describeRecord 以固定顺序拼接存在的（非缺失）字段。
// 缺失的可选字段直接省略，不渲染空占位。
func describeRecord(rec *core.InteractionRecord) string {
	var parts []string

	if rec.Description != "" {
		parts = append(parts, "Description: "+rec.Description)
	}
	if rec.PrimaryLanguage != "" {
		parts = append(parts, "Primary language: "+rec.PrimaryLanguage)
	}
	if len(rec.Languages) > 0 {
		langs := make([]string, len(rec.Languages))
		for i, l := range rec.Languages {
			langs[i] = fmt.Sprintf("%s (%d bytes)", l.Name, l.Size)
		}
		parts = append(parts, "Languages used: "+strings.Join(langs, ", "))
	}
	if topics := topicLabels(rec.Topics); len(topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(topics, ", "))
	}
	if !rec.CreatedAt.IsZero() {
		parts = append(parts, "Created: "+rec.CreatedAt.Format(time.RFC3339))
	}
	if !rec.PushedAt.IsZero() {
		parts = append(parts, "Last updated: "+rec.PushedAt.Format(time.RFC3339))
	}

	return strings.Join(parts, partSeparator)
}

// topicLabels 对带标记变体做单次显式分支，取标签名。
func topicLabels(topics []core.Topic) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		switch t.Kind {
		case core.TopicNested:
			if t.Inner != "" {
				out = append(out, t.Inner)
			}
		default:
			if t.Name != "" {
				out = append(out, t.Name)
			}
		}
	}
	return out
}

// userAccumulator 是单个所有者的聚合累加器（显式结构，非可变字典）。
type userAccumulator struct {
	items     int
	stars     int64
	forks     int64
	watchers  int64
	commits   int64
	langSizes map[string]int64
	langOrder []string
}

func (a *userAccumulator) add(rec *core.InteractionRecord) {
	a.items++
	a.stars += rec.Stars
	a.forks += rec.Forks
	a.watchers += rec.Watchers
	a.commits += rec.Commits
	for _, l := range rec.Languages {
		if _, seen := a.langSizes[l.Name]; !seen {
			a.langOrder = append(a.langOrder, l.Name)
		}
		a.langSizes[l.Name] += l.Size
	}
}

// topLangClause 取累计权重前 N 的语言并渲染。权重相同按名称升序，
// 保证输出确定。语言映射可为空，此时子句为空串。
func (a *userAccumulator) topLangClause(n int) string {
	names := make([]string, len(a.langOrder))
	copy(names, a.langOrder)
	sort.SliceStable(names, func(i, j int) bool {
		si, sj := a.langSizes[names[i]], a.langSizes[names[j]]
		if si != sj {
			return si > sj
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%d bytes)", name, a.langSizes[name])
	}
	return strings.Join(parts, ", ")
}

// BuildUserDescriptions 产出用户聚合描述表：对每个所有者求和数值
// 参与度字段、累计语言权重、取前 3 语言，渲染固定模板的自然语言
// 段落并加 "passage: " 角色前缀。
func (b *Builder) BuildUserDescriptions(records []core.InteractionRecord) []core.UserDescription {
	groups := make(map[string]*userAccumulator)
	order := make([]string, 0)

	for i := range records {
		rec := &records[i]
		owner := PseudonymousID(rec.Owner)
		a, seen := groups[owner]
		if !seen {
			a = &userAccumulator{langSizes: make(map[string]int64)}
			groups[owner] = a
			order = append(order, owner)
		}
		a.add(rec)
	}

	out := make([]core.UserDescription, 0, len(order))
	for _, owner := range order {
		a := groups[owner]
		desc := fmt.Sprintf(
			"%sOwner of %d repositories, %d stars, %d forks, %d watchers, %d commits in total. Main languages: %s",
			passagePrefix, a.items, a.stars, a.forks, a.watchers, a.commits,
			a.topLangClause(topLanguages),
		)
		out = append(out, core.UserDescription{OwnerHash: owner, Description: desc})
	}
	return out
}

// BuildItems 产出推理侧物品信息表。缺失描述补空串、缺失主语言补
// "unknown"、缺失语言 id 补 -1，与侧表语言映射保持一致。
func (b *Builder) BuildItems(records []core.InteractionRecord, languageIDs map[string]int64) []core.ItemInfo {
	out := make([]core.ItemInfo, 0, len(records))
	for i := range records {
		rec := &records[i]
		info := core.ItemInfo{
			ItemID:          PseudonymousID(rec.Item),
			Item:            rec.Item,
			Description:     rec.Description,
			PrimaryLanguage: rec.PrimaryLanguage,
			LanguageID:      -1,
			Languages:       rec.Languages,
			Topics:          topicLabels(rec.Topics),
		}
		if info.PrimaryLanguage == "" {
			info.PrimaryLanguage = "unknown"
		}
		if id, ok := languageIDs[rec.PrimaryLanguage]; ok {
			info.LanguageID = id
		}
		out = append(out, info)
	}
	return out
}

// buildMappings 构建两张映射侧表：物品 id → 稠密下标（首现顺序），
// 语言名 → 稠密 id（名称升序，保证跨运行稳定）。
func (b *Builder) buildMappings(records []core.InteractionRecord) (map[string]int64, map[string]int64) {
	itemIndex := make(map[string]int64)
	for i := range records {
		id := PseudonymousID(records[i].Item)
		if _, seen := itemIndex[id]; !seen {
			itemIndex[id] = int64(len(itemIndex))
		}
	}

	langSet := make(map[string]struct{})
	for i := range records {
		for _, l := range records[i].Languages {
			langSet[l.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(langSet))
	for name := range langSet {
		names = append(names, name)
	}
	sort.Strings(names)
	languageIDs := make(map[string]int64, len(names))
	for i, name := range names {
		languageIDs[name] = int64(i)
	}

	return itemIndex, languageIDs
}
