package indexer

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/dataset"
	"github.com/rushteam/recomtext/model"
	"github.com/rushteam/recomtext/vector"
)

// Config 是索引重建参数
type Config struct {
	// Artifacts 三件套工件落盘路径
	Artifacts core.IndexArtifacts

	// Metric 索引度量
	Metric string

	// Workers 编码并发数（0 取 CPU 数）
	Workers int
}

// Indexer 实现 core.IndexBuilder：从检查点恢复模型，编码全量物品，
// 构建平坦索引并原子替换三件套工件。
//
// 失败语义：任何一步失败都映射为 REBUILD_FAILED，由调用方决定
// 记录日志继续（训练侧）还是跳过本轮（验证侧）。
type Indexer struct {
	store  core.ArtifactStore
	cfg    Config
	logger *zap.Logger
}

func New(store core.ArtifactStore, cfg Config, logger *zap.Logger) *Indexer {
	if cfg.Metric == "" {
		cfg.Metric = "cosine"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{store: store, cfg: cfg, logger: logger}
}

// Rebuild 实现 core.IndexBuilder
func (ix *Indexer) Rebuild(ctx context.Context, req *core.IndexRebuildRequest) error {
	m := model.NewTwoTower(model.Config{})
	if err := m.Load(req.ModelPath); err != nil {
		return rebuildFailed("load model from %s: %v", req.ModelPath, err)
	}

	items, err := ix.store.Items(ctx)
	if err != nil {
		return rebuildFailed("load items: %v", err)
	}
	itemIndex, err := ix.store.ItemIndex(ctx)
	if err != nil {
		return rebuildFailed("load item index: %v", err)
	}

	// 物品表逐记录落行，同一物品可能重复；建索引保留首现
	seen := make(map[string]struct{}, len(items))
	var ids []string
	var texts []string
	var denseIDs []int64
	for i := range items {
		info := &items[i]
		if _, dup := seen[info.ItemID]; dup {
			continue
		}
		seen[info.ItemID] = struct{}{}
		dense, ok := itemIndex[info.ItemID]
		if !ok {
			dense = -1
		}
		ids = append(ids, info.ItemID)
		texts = append(texts, dataset.ItemPassage(info))
		denseIDs = append(denseIDs, dense)
	}
	if len(ids) == 0 {
		return rebuildFailed("no items to index")
	}

	embeddings := make([][]float64, len(ids))
	eg, _ := errgroup.WithContext(ctx)
	for w := 0; w < ix.cfg.Workers; w++ {
		worker := w
		eg.Go(func() error {
			for i := worker; i < len(ids); i += ix.cfg.Workers {
				embeddings[i] = m.EncodeItem(texts[i], denseIDs[i])
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return rebuildFailed("encode items: %v", err)
	}

	idx, err := vector.New(ids, embeddings, ix.cfg.Metric)
	if err != nil {
		return rebuildFailed("build index: %v", err)
	}
	defer idx.Close()
	if err := idx.Save(ix.cfg.Artifacts); err != nil {
		return rebuildFailed("save artifacts: %v", err)
	}

	ix.logger.Info("index rebuilt",
		zap.String("model_path", req.ModelPath),
		zap.Int("items", len(ids)),
		zap.String("metric", ix.cfg.Metric),
	)
	return nil
}

func rebuildFailed(format string, args ...interface{}) error {
	return core.NewDomainError(core.ModuleVector, core.ErrorCodeRebuildFailed,
		fmt.Sprintf(format, args...))
}

var _ core.IndexBuilder = (*Indexer)(nil)
