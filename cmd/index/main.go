package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/rushteam/recomtext/config"
	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/indexer"
	"github.com/rushteam/recomtext/store"
	"github.com/rushteam/recomtext/vector"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	modelPath := flag.String("model", "", "检查点目录（model_epoch_<N>）")
	query := flag.String("query-item", "", "重建后按物品 id 做一次自检检索（可选）")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if *modelPath == "" {
		logger.Fatal("missing -model flag")
	}

	cfg, err := config.LoadFromYAML(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Fatal("open artifact store", zap.Error(err))
	}
	defer s.Close()

	ctx := context.Background()
	ix := indexer.New(s, indexer.Config{
		Artifacts: cfg.Inference.Artifacts(),
		Metric:    cfg.Evaluation.Metric,
	}, logger)

	if err := ix.Rebuild(ctx, &core.IndexRebuildRequest{ModelPath: *modelPath}); err != nil {
		logger.Fatal("rebuild index", zap.Error(err))
	}

	if *query == "" {
		return
	}

	// 自检：加载刚写出的工件，以指定物品自身嵌入检索近邻
	idx, err := vector.Load(cfg.Inference.Artifacts())
	if err != nil {
		logger.Fatal("load artifacts", zap.Error(err))
	}
	defer idx.Close()

	pos := -1
	for i := 0; i < idx.Len(); i++ {
		if idx.ID(i) == *query {
			pos = i
			break
		}
	}
	if pos < 0 {
		logger.Fatal("query item not in index", zap.String("item", *query))
	}

	res, err := idx.Search(ctx, &core.VectorSearchRequest{
		Vector: idx.RawEmbedding(pos),
		TopK:   cfg.Inference.TopK,
		Metric: cfg.Evaluation.Metric,
	})
	if err != nil {
		logger.Fatal("search", zap.Error(err))
	}
	for rank, item := range res.Items {
		logger.Info("neighbor",
			zap.Int("rank", rank),
			zap.String("item_id", item.ID),
			zap.Float64("score", item.Score),
		)
	}
}
