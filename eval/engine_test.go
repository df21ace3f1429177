package eval

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/vector"
)

// fixedModel 把批内文本映射到预设嵌入
type fixedModel struct {
	itemVecs map[string][]float64
	userVecs map[string][]float64
}

func (m *fixedModel) Forward(_ context.Context, batch *core.Batch) ([][]float64, [][]float64, error) {
	items := make([][]float64, batch.Size())
	users := make([][]float64, batch.Size())
	for i := 0; i < batch.Size(); i++ {
		items[i] = m.itemVecs[batch.ItemKeys[i]]
		users[i] = m.userVecs[batch.UserKeys[i]]
	}
	return items, users, nil
}

func (m *fixedModel) Dim() int { return 2 }

type singleBatchSource struct {
	batch *core.Batch
	done  bool
}

func (s *singleBatchSource) Next() (*core.Batch, bool) {
	if s.done {
		return nil, false
	}
	s.done = true
	return s.batch, true
}

func (s *singleBatchSource) Reset() { s.done = false }
func (s *singleBatchSource) Len() int { return 1 }

// mapMetaStore 按物品 id 解析主语言类目
type mapMetaStore map[string]string

func (m mapMetaStore) GetItem(_ context.Context, itemID string) (*core.ItemInfo, error) {
	cat, ok := m[itemID]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	return &core.ItemInfo{ItemID: itemID, PrimaryLanguage: cat}, nil
}

type staticDemoSource struct {
	profiles []core.DemographicProfile
	err      error
}

func (s *staticDemoSource) Profiles(context.Context) ([]core.DemographicProfile, error) {
	return s.profiles, s.err
}

type rebuildFunc func(ctx context.Context, req *core.IndexRebuildRequest) error

func (f rebuildFunc) Rebuild(ctx context.Context, req *core.IndexRebuildRequest) error {
	return f(ctx, req)
}

func testArtifacts(t *testing.T) core.IndexArtifacts {
	t.Helper()
	dir := t.TempDir()
	return core.IndexArtifacts{
		IndexPath:      filepath.Join(dir, "index.gob"),
		IDsPath:        filepath.Join(dir, "ids.json"),
		EmbeddingsPath: filepath.Join(dir, "embeddings.bin"),
	}
}

func writeTestIndex(t *testing.T, art core.IndexArtifacts, ids []string, embeddings [][]float64) {
	t.Helper()
	idx, err := vector.New(ids, embeddings, "cosine")
	if err != nil {
		t.Fatalf("vector.New: %v", err)
	}
	if err := idx.Save(art); err != nil {
		t.Fatalf("save index: %v", err)
	}
}

func newTestEngine(t *testing.T, demo core.DemographicSource, indexer core.IndexBuilder, art core.IndexArtifacts) *Engine {
	t.Helper()
	itemVecs := map[string][]float64{
		"i0": {1, 0},
		"i2": {0, 1},
	}
	userVecs := map[string][]float64{
		"u0": {1, 0.05},
		"u1": {0.05, 1},
	}
	batch := &core.Batch{
		ItemTexts: []string{"passage: repo a", "passage: repo c"},
		UserTexts: []string{"query: owner 0", "query: owner 1"},
		ItemIDs:   []int64{0, 2},
		UserIDs:   []int64{0, 1},
		ItemKeys:  []string{"i0", "i2"},
		UserKeys:  []string{"u0", "u1"},
	}
	meta := mapMetaStore{
		"i0": "Go", "i1": "Go",
		"i2": "Python", "i3": "Python",
	}
	eng := NewEngine(&singleBatchSource{batch: batch}, meta, demo, indexer, Config{
		Artifacts: art,
		TopK:      4,
		Ks:        []int{1, 2},
	}, nil)
	eng.LoadModel = func(string) (core.EmbeddingModel, error) {
		return &fixedModel{itemVecs: itemVecs, userVecs: userVecs}, nil
	}
	return eng
}

func indexedItems() ([]string, [][]float64) {
	return []string{"i0", "i1", "i2", "i3"},
		[][]float64{{1, 0}, {0.9, 0.1}, {0, 1}, {0.1, 0.9}}
}

func TestEngineComputesRetrievalMetrics(t *testing.T) {
	art := testArtifacts(t)
	ids, embs := indexedItems()
	writeTestIndex(t, art, ids, embs)

	eng := newTestEngine(t, nil, nil, art)
	got, err := eng.Validate(context.Background(), nil, "unused")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got == nil {
		t.Fatal("expected metrics, got skip")
	}

	for _, key := range []string{
		core.MetricValLoss,
		core.MetricValContrastiveLoss,
		core.MetricValRecommendationLoss,
		core.MetricContextualNDCG,
		core.MetricCrossCategory,
		"semantic_precision@1",
		"semantic_precision@2",
	} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing metric %q in %v", key, got)
		}
	}

	// 两个用户的最近邻都与各自目标同类目：precision@1 为满分相似度均值
	if got["semantic_precision@1"] <= 0.9 {
		t.Fatalf("semantic_precision@1 = %v, want near 1", got["semantic_precision@1"])
	}
	if got[core.MetricContextualNDCG] <= 0 {
		t.Fatalf("contextual_ndcg = %v, want > 0", got[core.MetricContextualNDCG])
	}
	for key := range got {
		if strings.HasPrefix(key, core.MetricDASPrefix) {
			t.Fatalf("no demographic source configured, got %q", key)
		}
	}
}

func TestEngineAlignmentMetricsWithDemographics(t *testing.T) {
	art := testArtifacts(t)
	ids, embs := indexedItems()
	writeTestIndex(t, art, ids, embs)

	demo := &staticDemoSource{profiles: []core.DemographicProfile{
		{UserHash: "u0", AgeGroup: "18_29", Sex: "male"},
		{UserHash: "u1", AgeGroup: "30_44", Sex: "female"},
	}}
	eng := newTestEngine(t, demo, nil, art)

	got, err := eng.Validate(context.Background(), nil, "unused")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, key := range []string{"das_age_group", "das_sex", "das_overall"} {
		v, ok := got[key]
		if !ok {
			t.Fatalf("missing %q in %v", key, got)
		}
		if v < 0 || v > 1 {
			t.Fatalf("%s = %v, want in [0,1]", key, v)
		}
	}
}

func TestEngineDegradesWithoutDemographics(t *testing.T) {
	art := testArtifacts(t)
	ids, embs := indexedItems()
	writeTestIndex(t, art, ids, embs)

	demo := &staticDemoSource{err: core.NewDomainError(core.ModuleEval, core.ErrorCodeUnavailable, "feast down")}
	eng := newTestEngine(t, demo, nil, art)

	got, err := eng.Validate(context.Background(), nil, "unused")
	if err != nil {
		t.Fatalf("Validate should degrade, not fail: %v", err)
	}
	if got == nil {
		t.Fatal("expected degraded metrics, got skip")
	}
	if _, ok := got[core.MetricContextualNDCG]; !ok {
		t.Fatal("retrieval metrics must survive demographic outage")
	}
	for key := range got {
		if strings.HasPrefix(key, core.MetricDASPrefix) {
			t.Fatalf("alignment metric %q present despite outage", key)
		}
	}
}

func TestEngineSkipsWhenRebuildFails(t *testing.T) {
	art := testArtifacts(t) // 工件不存在
	failing := rebuildFunc(func(context.Context, *core.IndexRebuildRequest) error {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeRebuildFailed, "no model")
	})
	eng := newTestEngine(t, nil, failing, art)

	got, err := eng.Validate(context.Background(), nil, "unused")
	if err != nil {
		t.Fatalf("skip must not surface an error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected skipped epoch (nil metrics), got %v", got)
	}
}

func TestEngineUsesProvidedModelWithoutLoading(t *testing.T) {
	art := testArtifacts(t)
	ids, embs := indexedItems()
	writeTestIndex(t, art, ids, embs)

	eng := newTestEngine(t, nil, nil, art)
	live := &fixedModel{
		itemVecs: map[string][]float64{"i0": {1, 0}, "i2": {0, 1}},
		userVecs: map[string][]float64{"u0": {1, 0.05}, "u1": {0.05, 1}},
	}
	eng.LoadModel = func(dir string) (core.EmbeddingModel, error) {
		t.Fatalf("LoadModel called with %q, in-memory model must be used", dir)
		return nil, nil
	}

	got, err := eng.Validate(context.Background(), live, "ckpt/model_epoch_0")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got == nil {
		t.Fatal("expected metrics from the in-memory model")
	}
	if _, ok := got[core.MetricContextualNDCG]; !ok {
		t.Fatalf("missing contextual_ndcg in %v", got)
	}
}

func TestEngineRebuildsMissingIndexOnDemand(t *testing.T) {
	art := testArtifacts(t)
	builder := rebuildFunc(func(_ context.Context, req *core.IndexRebuildRequest) error {
		if req.ModelPath != "ckpt/model_epoch_0" {
			t.Fatalf("rebuild got model path %q", req.ModelPath)
		}
		ids, embs := indexedItems()
		writeTestIndex(t, art, ids, embs)
		return nil
	})
	eng := newTestEngine(t, nil, builder, art)

	got, err := eng.Validate(context.Background(), nil, "ckpt/model_epoch_0")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got == nil {
		t.Fatal("expected metrics after on-demand rebuild")
	}
}
