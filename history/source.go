package history

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/pkg/conv"
)

// LoadRecords 从仓库元数据 JSON 文件加载交互记录。
//
// 错误语义：
//   - 文件不存在 → MISSING_SOURCE（致命，终止预处理阶段）
//   - 嵌套的 languages/topics 结构形态不规整 → 容忍，尽力提取，不报错
func LoadRecords(path string) ([]core.InteractionRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, core.NewDomainError(core.ModuleHistory, core.ErrorCodeMissingSource,
			fmt.Sprintf("history: source file not found: %s", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse source: %w", err)
	}

	records := make([]core.InteractionRecord, 0, len(raw))
	for _, row := range raw {
		records = append(records, parseRecord(row))
	}
	return records, nil
}

// parseRecord 将一行半结构化元数据归一为 InteractionRecord。
// 缺失的数值按 0、缺失的布尔按 false、缺失的可选文本保持空串。
func parseRecord(row map[string]any) core.InteractionRecord {
	rec := core.InteractionRecord{}

	rec.Item, _ = conv.ToString(row["nameWithOwner"])
	rec.Owner, _ = conv.ToString(row["owner"])
	rec.ItemName, _ = conv.ToString(row["name"])
	rec.Description, _ = conv.ToString(row["description"])
	rec.PrimaryLanguage, _ = conv.ToString(row["primaryLanguage"])

	rec.Languages = parseLanguages(row["languages"])
	rec.Topics = parseTopics(row["topics"])

	rec.CreatedAt = parseTime(row["createdAt"])
	rec.PushedAt = parseTime(row["pushedAt"])

	rec.Stars, _ = conv.ToInt64(row["stars"])
	rec.Forks, _ = conv.ToInt64(row["forks"])
	rec.Watchers, _ = conv.ToInt64(row["watchers"])
	rec.Commits, _ = conv.ToInt64(row["defaultBranchCommitCount"])

	rec.IsFork, _ = conv.ToBool(row["isFork"])
	rec.IsArchived, _ = conv.ToBool(row["isArchived"])
	rec.ForkingAllowed, _ = conv.ToBool(row["forkingAllowed"])

	return rec
}

// parseLanguages 容忍两种形态：
//   - 对象形态 {"Go": 1200, "Make": 40}
//   - 列表形态 [{"name": "Go", "size": 1200}]
func parseLanguages(v any) []core.LanguageUsage {
	switch langs := v.(type) {
	case map[string]any:
		out := make([]core.LanguageUsage, 0, len(langs))
		for name, size := range langs {
			n, _ := conv.ToInt64(size)
			out = append(out, core.LanguageUsage{Name: name, Size: n})
		}
		return out
	case []any:
		return conv.ConvertSlice(langs, func(e any) (core.LanguageUsage, bool) {
			m, ok := conv.TypeAssert[map[string]any](e)
			if !ok {
				return core.LanguageUsage{}, false
			}
			name, ok := conv.ToString(m["name"])
			if !ok || name == "" {
				return core.LanguageUsage{}, false
			}
			size, _ := conv.ToInt64(m["size"])
			return core.LanguageUsage{Name: name, Size: size}, true
		})
	default:
		return nil
	}
}

// parseTopics 归一三种形态为带标记变体：
//   - ["go", "ml"]                  → FlatTopic
//   - [{"name": "go"}]              → FlatTopic
//   - [{"name": {"name": "go"}}]    → NestedTopic
//
// 形态不规整的元素被跳过，不报错。
func parseTopics(v any) []core.Topic {
	list, ok := conv.TypeAssert[[]any](v)
	if !ok {
		return nil
	}
	return conv.ConvertSlice(list, func(e any) (core.Topic, bool) {
		switch t := e.(type) {
		case string:
			return core.FlatTopic(t), true
		case map[string]any:
			switch name := t["name"].(type) {
			case string:
				return core.FlatTopic(name), true
			case map[string]any:
				inner, _ := conv.ToString(name["name"])
				if inner == "" {
					return core.Topic{}, false
				}
				outer, _ := conv.ToString(name["outer"])
				return core.NestedTopic(outer, inner), true
			default:
				return core.Topic{}, false
			}
		default:
			return core.Topic{}, false
		}
	})
}

func parseTime(v any) time.Time {
	s, ok := conv.ToString(v)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
