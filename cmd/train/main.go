package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/recomtext/config"
	"github.com/rushteam/recomtext/core"
	"github.com/rushteam/recomtext/dataset"
	"github.com/rushteam/recomtext/eval"
	"github.com/rushteam/recomtext/indexer"
	"github.com/rushteam/recomtext/model"
	"github.com/rushteam/recomtext/store"
	"github.com/rushteam/recomtext/train"
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Fatal("open artifact store", zap.Error(err))
	}
	defer s.Close()

	arts, err := store.LoadHistoryArtifacts(ctx, s)
	if err != nil {
		logger.Fatal("load artifacts", zap.Error(err))
	}

	trainSrc, valSrc, err := dataset.Build(arts, dataset.Config{
		BatchSize:   cfg.Training.BatchSize,
		ValFraction: cfg.Data.ValFraction,
	})
	if err != nil {
		logger.Fatal("build batch sources", zap.Error(err))
	}
	logger.Info("batch sources ready",
		zap.Int("train_samples", trainSrc.Samples()),
		zap.Int("val_samples", valSrc.Samples()),
	)

	mdl := model.NewTwoTower(model.Config{
		Dim:          cfg.Model.Dim,
		TextBuckets:  cfg.Model.TextBuckets,
		IDBuckets:    cfg.Model.IDBuckets,
		LearningRate: cfg.Training.LearningRate,
		Seed:         cfg.Model.Seed,
	})

	ix := indexer.New(s, indexer.Config{
		Artifacts: cfg.Inference.Artifacts(),
		Metric:    cfg.Evaluation.Metric,
	}, logger)

	meta := newMetadataStore(cfg, s, logger)
	demo := newDemographicSource(ctx, cfg, s, valSrc, logger)

	engine := eval.NewEngine(valSrc, meta, demo, ix, eval.Config{
		Artifacts:    cfg.Inference.Artifacts(),
		Metric:       cfg.Evaluation.Metric,
		TopK:         cfg.Inference.TopK,
		Ks:           cfg.Evaluation.Ks,
		SimThreshold: cfg.Evaluation.SimThreshold,
		LambdaRec:    cfg.Training.LambdaRec,
	}, logger)

	trainer := train.NewTrainer(mdl, trainSrc, engine, ix, train.Config{
		Epochs:        cfg.Training.Epochs,
		LambdaRec:     cfg.Training.LambdaRec,
		Patience:      cfg.Training.Patience,
		CheckpointDir: cfg.Training.CheckpointDir,
	}, logger)

	res, err := trainer.Run(ctx)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
	logger.Info("training finished",
		zap.Int("epochs_run", res.EpochsRun),
		zap.Int("best_epoch", res.BestEpoch),
		zap.Float64("best_contextual_ndcg", res.BestMetric),
		zap.Bool("early_stopped", res.EarlyStopped),
		zap.String("last_model_dir", res.LastModelDir),
	)
}

// newMetadataStore 按配置决定是否在元数据读路径前加 redis 缓存
func newMetadataStore(cfg *config.Config, s *store.SQLiteStore, logger *zap.Logger) core.MetadataStore {
	if cfg.Store.RedisAddr == "" {
		return s
	}
	cache, err := store.NewRedisMetadataCache(cfg.Store.RedisAddr, cfg.Store.RedisDB, s,
		time.Duration(cfg.Store.CacheTTLSeconds)*time.Second)
	if err != nil {
		logger.Warn("redis cache unavailable, using store directly", zap.Error(err))
		return s
	}
	return cache
}

// newDemographicSource 按配置构建画像源；不可用时返回 nil（验证降级）
func newDemographicSource(ctx context.Context, cfg *config.Config, s *store.SQLiteStore, valSrc *dataset.Source, logger *zap.Logger) core.DemographicSource {
	switch cfg.Demographics.Source {
	case "none":
		return nil
	case "feast":
		rules, err := eval.NewRuleset(cfg.Demographics.Rules)
		if err != nil {
			logger.Warn("invalid demographic rules, alignment metrics disabled", zap.Error(err))
			return nil
		}
		src, err := eval.NewFeastSource(eval.FeastConfig{
			Host:    cfg.Demographics.FeastHost,
			Port:    cfg.Demographics.FeastPort,
			Project: cfg.Demographics.FeastProject,
		}, collectUserHashes(valSrc), rules)
		if err != nil {
			logger.Warn("feast unavailable, alignment metrics disabled", zap.Error(err))
			return nil
		}
		return src
	default:
		return eval.NewStoreSource(s)
	}
}

// collectUserHashes 收集验证集全部用户假名 id
func collectUserHashes(src *dataset.Source) []string {
	var hashes []string
	src.Reset()
	for {
		batch, ok := src.Next()
		if !ok {
			break
		}
		hashes = append(hashes, batch.UserKeys...)
	}
	src.Reset()
	return hashes
}
