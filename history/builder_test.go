package history

import (
	"strings"
	"testing"
	"time"

	"github.com/rushteam/recomtext/core"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildSortedHistories_Scenario(t *testing.T) {
	// 两个所有者：一个 1 个物品，一个 3 个物品，更新时间 t1 < t3 < t2。
	// 期望：仅 3 物品所有者保留，物品顺序 [t1, t3, t2]。
	records := []core.InteractionRecord{
		{Owner: "solo", Item: "solo/one", PushedAt: ts("2021-01-01T00:00:00Z")},
		{Owner: "multi", Item: "multi/b", PushedAt: ts("2021-06-01T00:00:00Z")}, // t2
		{Owner: "multi", Item: "multi/a", PushedAt: ts("2021-01-01T00:00:00Z")}, // t1
		{Owner: "multi", Item: "multi/c", PushedAt: ts("2021-03-01T00:00:00Z")}, // t3
	}

	got := NewBuilder().BuildSortedHistories(records)
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	row := got[0]
	if row.OwnerHash != PseudonymousID("multi") {
		t.Errorf("owner = %q, want hash of multi", row.OwnerHash)
	}
	want := []string{
		PseudonymousID("multi/a"),
		PseudonymousID("multi/c"),
		PseudonymousID("multi/b"),
	}
	if len(row.ItemIDs) != len(want) {
		t.Fatalf("items = %d, want %d", len(row.ItemIDs), len(want))
	}
	for i := range want {
		if row.ItemIDs[i] != want[i] {
			t.Errorf("item[%d] = %q, want %q", i, row.ItemIDs[i], want[i])
		}
	}
}

func TestBuildSortedHistories_SingleItemOwnersExcluded(t *testing.T) {
	records := []core.InteractionRecord{
		{Owner: "a", Item: "a/1", PushedAt: ts("2021-01-01T00:00:00Z")},
		{Owner: "b", Item: "b/1", PushedAt: ts("2021-01-02T00:00:00Z")},
	}
	if got := NewBuilder().BuildSortedHistories(records); len(got) != 0 {
		t.Errorf("rows = %d, want 0 (single-item histories carry no signal)", len(got))
	}
}

func TestBuildUserDescriptions_LanguageAggregation(t *testing.T) {
	// 语言权重 {Python:100, Go:50, Python:30} 聚合为 Python:130, Go:50，
	// 且 Python 排在 Go 前面。
	records := []core.InteractionRecord{
		{Owner: "u", Item: "u/1", Stars: 10, Languages: []core.LanguageUsage{
			{Name: "Python", Size: 100},
			{Name: "Go", Size: 50},
		}},
		{Owner: "u", Item: "u/2", Stars: 5, Languages: []core.LanguageUsage{
			{Name: "Python", Size: 30},
		}},
	}

	got := NewBuilder().BuildUserDescriptions(records)
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	desc := got[0].Description
	if !strings.HasPrefix(desc, "passage: ") {
		t.Errorf("missing passage role prefix: %q", desc)
	}
	if !strings.Contains(desc, "Python (130 bytes), Go (50 bytes)") {
		t.Errorf("language aggregation wrong: %q", desc)
	}
	if !strings.Contains(desc, "Owner of 2 repositories") {
		t.Errorf("repository count wrong: %q", desc)
	}
	if !strings.Contains(desc, "15 stars") {
		t.Errorf("stars not summed: %q", desc)
	}
}

func TestBuildUserDescriptions_TopThreeOnly(t *testing.T) {
	records := []core.InteractionRecord{
		{Owner: "u", Item: "u/1", Languages: []core.LanguageUsage{
			{Name: "A", Size: 400},
			{Name: "B", Size: 300},
			{Name: "C", Size: 200},
			{Name: "D", Size: 100},
		}},
		{Owner: "u", Item: "u/2"},
	}
	desc := NewBuilder().BuildUserDescriptions(records)[0].Description
	if strings.Contains(desc, "D (") {
		t.Errorf("fourth language should be cut: %q", desc)
	}
	for _, lang := range []string{"A (400 bytes)", "B (300 bytes)", "C (200 bytes)"} {
		if !strings.Contains(desc, lang) {
			t.Errorf("missing %q in %q", lang, desc)
		}
	}
}

func TestBuildUserDescriptions_EmptyLanguageMap(t *testing.T) {
	records := []core.InteractionRecord{{Owner: "u", Item: "u/1"}}
	desc := NewBuilder().BuildUserDescriptions(records)[0].Description
	// 空语言映射产生空的语言子句，而不是报错
	if !strings.HasSuffix(desc, "Main languages: ") {
		t.Errorf("expected empty top-language clause, got %q", desc)
	}
}

func TestBuildTextualProfiles_FieldOrderAndOmission(t *testing.T) {
	records := []core.InteractionRecord{
		{
			Owner:           "u",
			Item:            "u/full",
			Description:     "a tool",
			PrimaryLanguage: "Go",
			Languages:       []core.LanguageUsage{{Name: "Go", Size: 10}},
			Topics:          []core.Topic{core.FlatTopic("cli"), core.NestedTopic("outer", "ml")},
			CreatedAt:       ts("2020-01-01T00:00:00Z"),
			PushedAt:        ts("2021-01-01T00:00:00Z"),
		},
		{
			// 可选字段全部缺失：不渲染空占位
			Owner:    "u",
			Item:     "u/bare",
			PushedAt: ts("2021-02-01T00:00:00Z"),
		},
	}

	got := NewBuilder().BuildTextualProfiles(records)
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	view := got[0].DetailedView
	if !strings.HasPrefix(view, "query: ") {
		t.Errorf("missing query role prefix: %q", view)
	}
	// 字段固定顺序
	idxDesc := strings.Index(view, "Description: a tool")
	idxLang := strings.Index(view, "Primary language: Go")
	idxUsed := strings.Index(view, "Languages used: Go (10 bytes)")
	idxTopics := strings.Index(view, "Topics: cli, ml")
	idxCreated := strings.Index(view, "Created: 2020-01-01")
	if idxDesc < 0 || idxLang < 0 || idxUsed < 0 || idxTopics < 0 || idxCreated < 0 {
		t.Fatalf("missing parts in %q", view)
	}
	if !(idxDesc < idxLang && idxLang < idxUsed && idxUsed < idxTopics && idxTopics < idxCreated) {
		t.Errorf("field order wrong: %q", view)
	}
	if strings.Contains(view, "Description: "+partSeparator) {
		t.Errorf("empty placeholder rendered: %q", view)
	}
	if len(got[0].PrimaryLanguages) != 2 {
		t.Errorf("primary languages = %v, want one entry per record", got[0].PrimaryLanguages)
	}
}

func TestBuildItems_MissingFields(t *testing.T) {
	records := []core.InteractionRecord{
		{Owner: "u", Item: "u/1", PrimaryLanguage: "Go",
			Languages: []core.LanguageUsage{{Name: "Go", Size: 1}}},
		{Owner: "u", Item: "u/2"},
	}
	b := NewBuilder()
	_, langIDs := b.buildMappings(records)
	items := b.BuildItems(records, langIDs)

	if items[0].LanguageID != langIDs["Go"] {
		t.Errorf("language id = %d, want %d", items[0].LanguageID, langIDs["Go"])
	}
	if items[1].PrimaryLanguage != "unknown" {
		t.Errorf("missing primary language should become unknown, got %q", items[1].PrimaryLanguage)
	}
	if items[1].LanguageID != -1 {
		t.Errorf("missing language id should be -1, got %d", items[1].LanguageID)
	}
}

func TestBuildMappings_DenseAndStable(t *testing.T) {
	records := []core.InteractionRecord{
		{Owner: "u", Item: "u/1", Languages: []core.LanguageUsage{{Name: "Go", Size: 1}, {Name: "C", Size: 2}}},
		{Owner: "u", Item: "u/2", Languages: []core.LanguageUsage{{Name: "Ada", Size: 3}}},
		{Owner: "u", Item: "u/1"}, // 重复物品不重复计数
	}
	itemIndex, langIDs := NewBuilder().buildMappings(records)
	if len(itemIndex) != 2 {
		t.Errorf("item index size = %d, want 2", len(itemIndex))
	}
	// 语言 id 按名称升序分配：Ada=0, C=1, Go=2
	for name, want := range map[string]int64{"Ada": 0, "C": 1, "Go": 2} {
		if langIDs[name] != want {
			t.Errorf("language %q id = %d, want %d", name, langIDs[name], want)
		}
	}
}
