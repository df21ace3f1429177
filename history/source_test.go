package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rushteam/recomtext/core"
)

func TestLoadRecords_MissingSource(t *testing.T) {
	_, err := LoadRecords(filepath.Join(t.TempDir(), "absent.json"))
	if !core.IsMissingSource(err) {
		t.Fatalf("err = %v, want MISSING_SOURCE", err)
	}
}

func TestLoadRecords_TolerantShapes(t *testing.T) {
	// languages 对象/列表两种形态、topics 三种形态都要被容忍
	src := `[
		{
			"nameWithOwner": "alice/tool",
			"owner": "alice",
			"description": "a tool",
			"primaryLanguage": "Go",
			"languages": {"Go": 1200, "Makefile": 40},
			"topics": ["cli", {"name": "ml"}, {"name": {"name": "deep"}}, 42],
			"createdAt": "2020-01-02T03:04:05Z",
			"pushedAt": "2021-01-02T03:04:05Z",
			"stars": 7,
			"isFork": true
		},
		{
			"nameWithOwner": "bob/lib",
			"owner": "bob",
			"languages": [{"name": "Rust", "size": 99}, {"size": 1}]
		}
	]`
	path := filepath.Join(t.TempDir(), "repo_metadata.json")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := LoadRecords(path)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}

	first := records[0]
	if len(first.Languages) != 2 {
		t.Errorf("languages = %v, want 2 entries", first.Languages)
	}
	// 不规整元素（42）被跳过，其余归一成带标记变体
	if len(first.Topics) != 3 {
		t.Fatalf("topics = %v, want 3 entries", first.Topics)
	}
	if first.Topics[0].Kind != core.TopicFlat || first.Topics[0].Label() != "cli" {
		t.Errorf("topic[0] = %+v, want flat cli", first.Topics[0])
	}
	if first.Topics[2].Kind != core.TopicNested || first.Topics[2].Label() != "deep" {
		t.Errorf("topic[2] = %+v, want nested deep", first.Topics[2])
	}
	if first.Stars != 7 || !first.IsFork {
		t.Errorf("numeric/bool fields wrong: stars=%d fork=%v", first.Stars, first.IsFork)
	}
	if first.CreatedAt.IsZero() || first.PushedAt.IsZero() {
		t.Error("timestamps not parsed")
	}

	second := records[1]
	// 缺失数值按 0，缺失布尔按 false
	if second.Stars != 0 || second.IsFork {
		t.Errorf("missing fields not defaulted: %+v", second)
	}
	if len(second.Languages) != 1 || second.Languages[0].Name != "Rust" {
		t.Errorf("list-shaped languages wrong: %v", second.Languages)
	}
}
