package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/model"
	"github.com/rushteam/recomtext/store"
	"github.com/rushteam/recomtext/vector"
)

func testArtifacts(t *testing.T) core.IndexArtifacts {
	t.Helper()
	dir := t.TempDir()
	return core.IndexArtifacts{
		IndexPath:      filepath.Join(dir, "index.gob"),
		IDsPath:        filepath.Join(dir, "ids.json"),
		EmbeddingsPath: filepath.Join(dir, "embeddings.bin"),
	}
}

func saveTestModel(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "model_epoch_0")
	m := model.NewTwoTower(model.Config{Dim: 8, Seed: 1})
	if err := m.Save(dir); err != nil {
		t.Fatalf("save model: %v", err)
	}
	return dir
}

func seedStore(t *testing.T, items []core.ItemInfo, index map[string]int64) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	if err := s.SaveItems(ctx, items); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveItemIndex(ctx, index); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRebuildWritesSearchableArtifacts(t *testing.T) {
	art := testArtifacts(t)
	modelDir := saveTestModel(t)
	s := seedStore(t,
		[]core.ItemInfo{
			{ItemID: "i1", Item: "repo-a", Description: "http client", PrimaryLanguage: "Go"},
			{ItemID: "i2", Item: "repo-b", Description: "web framework", PrimaryLanguage: "Python"},
			{ItemID: "i1", Item: "repo-a", Description: "http client", PrimaryLanguage: "Go"}, // 重复记录
		},
		map[string]int64{"i1": 0, "i2": 1},
	)

	ix := New(s, Config{Artifacts: art, Workers: 2}, nil)
	if err := ix.Rebuild(context.Background(), &core.IndexRebuildRequest{ModelPath: modelDir}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if !vector.ArtifactsExist(art) {
		t.Fatal("rebuild must write all three artifacts")
	}
	idx, err := vector.Load(art)
	if err != nil {
		t.Fatalf("load rebuilt index: %v", err)
	}
	defer idx.Close()

	if idx.Len() != 2 {
		t.Fatalf("index len = %d, want 2 (duplicates collapsed)", idx.Len())
	}
	res, err := idx.Search(context.Background(), &core.VectorSearchRequest{
		Vector: idx.RawEmbedding(0),
		TopK:   1,
		Metric: "cosine",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "i1" {
		t.Fatalf("self-search = %+v, want i1 first", res.Items)
	}
}

func TestRebuildFailsWithoutModel(t *testing.T) {
	art := testArtifacts(t)
	s := seedStore(t, []core.ItemInfo{{ItemID: "i1"}}, map[string]int64{"i1": 0})

	ix := New(s, Config{Artifacts: art}, nil)
	err := ix.Rebuild(context.Background(), &core.IndexRebuildRequest{ModelPath: filepath.Join(t.TempDir(), "missing")})
	if !core.IsRebuildFailed(err) {
		t.Fatalf("expected REBUILD_FAILED, got %v", err)
	}
	if vector.ArtifactsExist(art) {
		t.Fatal("failed rebuild must not leave artifacts behind")
	}
}

func TestRebuildFailsOnEmptyItemTable(t *testing.T) {
	art := testArtifacts(t)
	modelDir := saveTestModel(t)
	s := seedStore(t, nil, map[string]int64{})

	ix := New(s, Config{Artifacts: art}, nil)
	err := ix.Rebuild(context.Background(), &core.IndexRebuildRequest{ModelPath: modelDir})
	if !core.IsRebuildFailed(err) {
		t.Fatalf("expected REBUILD_FAILED, got %v", err)
	}
}
