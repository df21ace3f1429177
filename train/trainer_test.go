package train

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rushteam/recomtext/core"
)

// stubModel 是固定输出的可训练模型桩
type stubModel struct {
	saved []string
	steps int
}

func (m *stubModel) Forward(_ context.Context, batch *core.Batch) ([][]float64, [][]float64, error) {
	n := batch.Size()
	items := make([][]float64, n)
	users := make([][]float64, n)
	for i := 0; i < n; i++ {
		items[i] = []float64{1, float64(i)}
		users[i] = []float64{float64(i), 1}
	}
	return items, users, nil
}

func (m *stubModel) Dim() int { return 2 }

func (m *stubModel) Step(_ *core.Batch, _, _ [][]float64) { m.steps++ }

func (m *stubModel) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	m.saved = append(m.saved, dir)
	return nil
}

func (m *stubModel) Load(string) error { return nil }

// stubSource 产出单个两样本批
type stubSource struct {
	done bool
}

func (s *stubSource) Next() (*core.Batch, bool) {
	if s.done {
		return nil, false
	}
	s.done = true
	return &core.Batch{
		ItemTexts: []string{"passage: a", "passage: b"},
		UserTexts: []string{"query: u1", "query: u2"},
		ItemIDs:   []int64{0, 1},
		UserIDs:   []int64{0, 1},
		ItemKeys:  []string{"i0", "i1"},
		UserKeys:  []string{"u0", "u1"},
	}, true
}

func (s *stubSource) Reset() { s.done = false }
func (s *stubSource) Len() int { return 1 }

// scriptedValidator 按轮次返回预设的 contextual_ndcg；NaN 槽位表示跳过
type scriptedValidator struct {
	scores []float64 // <0 表示本轮跳过
	calls  int
}

func (v *scriptedValidator) Validate(_ context.Context, _ core.EmbeddingModel, _ string) (core.Metrics, error) {
	score := v.scores[v.calls%len(v.scores)]
	v.calls++
	if score < 0 {
		return nil, nil
	}
	return core.Metrics{core.MetricContextualNDCG: score}, nil
}

// spyValidator 记录每轮收到的模型与其累计步数，以及检查点路径
type spyValidator struct {
	models []core.EmbeddingModel
	steps  []int
	paths  []string
}

func (v *spyValidator) Validate(_ context.Context, mdl core.EmbeddingModel, modelPath string) (core.Metrics, error) {
	v.models = append(v.models, mdl)
	if m, ok := mdl.(*stubModel); ok {
		v.steps = append(v.steps, m.steps)
	}
	v.paths = append(v.paths, modelPath)
	return core.Metrics{core.MetricContextualNDCG: 0.5}, nil
}

type failingIndexer struct{ calls int }

func (f *failingIndexer) Rebuild(context.Context, *core.IndexRebuildRequest) error {
	f.calls++
	return core.NewDomainError("vector", "REBUILD_FAILED", "boom")
}

func newTestTrainer(t *testing.T, v Validator, idx core.IndexBuilder, epochs, patience int) (*Trainer, *stubModel) {
	t.Helper()
	model := &stubModel{}
	cfg := Config{
		Epochs:        epochs,
		LambdaRec:     0.4,
		Patience:      patience,
		CheckpointDir: t.TempDir(),
	}
	return NewTrainer(model, &stubSource{}, v, idx, cfg, nil), model
}

func TestTrainerEarlyStopsAfterPatienceEpochs(t *testing.T) {
	// 第 0 轮必然提升（基线 -Inf），随后恒定不提升
	v := &scriptedValidator{scores: []float64{0.5}}
	tr, _ := newTestTrainer(t, v, nil, 20, 3)

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.EarlyStopped {
		t.Fatal("expected early stop")
	}
	if res.EpochsRun != 4 {
		t.Fatalf("EpochsRun = %d, want 4 (epoch 0 improves, then 3 flat)", res.EpochsRun)
	}
	if res.BestEpoch != 0 || res.BestMetric != 0.5 {
		t.Fatalf("best = (%d, %v), want (0, 0.5)", res.BestEpoch, res.BestMetric)
	}
}

func TestTrainerRunsToCompletionBelowPatience(t *testing.T) {
	v := &scriptedValidator{scores: []float64{0.5}}
	tr, _ := newTestTrainer(t, v, nil, 4, 4)

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.EarlyStopped {
		t.Fatal("3 flat epochs with patience 4 should not early stop")
	}
	if res.EpochsRun != 4 {
		t.Fatalf("EpochsRun = %d, want 4", res.EpochsRun)
	}
}

func TestTrainerSkippedValidationDoesNotCount(t *testing.T) {
	// 提升, 跳过, 不提升, 跳过, 不提升：patience=2 时在第 4 轮停止
	v := &scriptedValidator{scores: []float64{0.5, -1, 0.4, -1, 0.4}}
	tr, _ := newTestTrainer(t, v, nil, 20, 2)

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.EarlyStopped || res.EpochsRun != 5 {
		t.Fatalf("EpochsRun = %d (earlyStopped=%v), want 5 with early stop", res.EpochsRun, res.EarlyStopped)
	}
	if res.BestEpoch != 0 {
		t.Fatalf("BestEpoch = %d, want 0", res.BestEpoch)
	}
}

func TestTrainerImprovementResetsCounter(t *testing.T) {
	v := &scriptedValidator{scores: []float64{0.5, 0.4, 0.6, 0.4, 0.4, 0.4}}
	tr, model := newTestTrainer(t, v, nil, 20, 3)

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.EarlyStopped || res.EpochsRun != 6 {
		t.Fatalf("EpochsRun = %d (earlyStopped=%v), want 6 with early stop", res.EpochsRun, res.EarlyStopped)
	}
	if res.BestEpoch != 2 || res.BestMetric != 0.6 {
		t.Fatalf("best = (%d, %v), want (2, 0.6)", res.BestEpoch, res.BestMetric)
	}
	// 检查点：第 0 轮无条件一次 + 第 0 轮提升一次 + 第 2 轮提升一次
	want := []string{"model_epoch_0", "model_epoch_0", "model_epoch_2"}
	if len(model.saved) != len(want) {
		t.Fatalf("saved %d checkpoints %v, want %d", len(model.saved), model.saved, len(want))
	}
	for i, dir := range model.saved {
		if filepath.Base(dir) != want[i] {
			t.Fatalf("checkpoint[%d] = %s, want %s", i, filepath.Base(dir), want[i])
		}
	}
}

func TestTrainerCheckpointsFirstEpochWithoutValidator(t *testing.T) {
	tr, model := newTestTrainer(t, nil, nil, 2, 3)

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.EpochsRun != 2 || res.EarlyStopped {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(model.saved) != 1 || filepath.Base(model.saved[0]) != "model_epoch_0" {
		t.Fatalf("saved = %v, want single model_epoch_0", model.saved)
	}
}

func TestTrainerIndexRebuildFailureIsNonFatal(t *testing.T) {
	v := &scriptedValidator{scores: []float64{0.5}}
	idx := &failingIndexer{}
	tr, _ := newTestTrainer(t, v, idx, 20, 2)

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("rebuild failure must not abort training: %v", err)
	}
	if !res.EarlyStopped {
		t.Fatal("expected early stop despite rebuild failures")
	}
	if idx.calls == 0 {
		t.Fatal("indexer was never invoked")
	}
}

func TestTrainerValidationErrorSkipsEpoch(t *testing.T) {
	v := &errValidator{}
	tr, _ := newTestTrainer(t, v, nil, 3, 1)

	res, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.EarlyStopped {
		t.Fatal("failed validations must not trigger early stop")
	}
	if res.EpochsRun != 3 {
		t.Fatalf("EpochsRun = %d, want 3", res.EpochsRun)
	}
}

type errValidator struct{}

func (errValidator) Validate(context.Context, core.EmbeddingModel, string) (core.Metrics, error) {
	return nil, errors.New("index unavailable")
}

func TestTrainerValidatesCurrentModelEachEpoch(t *testing.T) {
	v := &spyValidator{}
	tr, model := newTestTrainer(t, v, nil, 4, 10)

	if _, err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(v.models) != 4 {
		t.Fatalf("validated %d epochs, want 4", len(v.models))
	}
	// 每轮验证的必须是内存态的当前模型，而不是某个检查点的旧快照
	for epoch, mdl := range v.models {
		if mdl != model {
			t.Fatalf("epoch %d validated a different model instance", epoch)
		}
	}
	// 步数随轮次单调增长，证明验证看到的是训练后的状态
	for epoch, steps := range v.steps {
		if steps != epoch+1 {
			t.Fatalf("epoch %d validated after %d steps, want %d", epoch, steps, epoch+1)
		}
	}
	// modelPath 始终指向最近一次保存的检查点（供索引重建）
	for epoch, p := range v.paths {
		if filepath.Base(p) != "model_epoch_0" {
			t.Fatalf("epoch %d got model path %s, want last checkpoint model_epoch_0", epoch, p)
		}
	}
}
