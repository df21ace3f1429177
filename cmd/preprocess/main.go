package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/rushteam/recomtext/config"
	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/history"
	"github.com/rushteam/recomtext/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadFromYAML(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	records, err := history.LoadRecords(cfg.Data.SourcePath)
	if err != nil {
		// 缺失输入文件是致命错误，预处理阶段直接终止
		if core.IsMissingSource(err) {
			logger.Fatal("source file missing", zap.String("path", cfg.Data.SourcePath), zap.Error(err))
		}
		logger.Fatal("load records", zap.Error(err))
	}
	logger.Info("records loaded", zap.Int("count", len(records)))

	arts := history.NewBuilder().BuildAll(records)

	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Fatal("open artifact store", zap.Error(err))
	}
	defer s.Close()

	ctx := context.Background()
	if err := store.SaveHistoryArtifacts(ctx, s, arts); err != nil {
		logger.Fatal("save artifacts", zap.Error(err))
	}

	logger.Info("preprocessing finished",
		zap.String("store", s.Name()),
		zap.Int("sorted_histories", len(arts.SortedHistories)),
		zap.Int("textual_profiles", len(arts.TextualProfiles)),
		zap.Int("user_descriptions", len(arts.UserDescriptions)),
		zap.Int("items", len(arts.Items)),
		zap.Int("languages", len(arts.LanguageID)),
	)
}
