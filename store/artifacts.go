package store

import (
	"context"

	"github.com/rushteam/recomtext/core"
)

// LoadHistoryArtifacts 从存储一次性装载全部派生工件
func LoadHistoryArtifacts(ctx context.Context, s core.ArtifactStore) (*core.HistoryArtifacts, error) {
	arts := &core.HistoryArtifacts{}
	var err error

	if arts.SortedHistories, err = s.SortedHistories(ctx); err != nil {
		return nil, err
	}
	if arts.TextualProfiles, err = s.TextualProfiles(ctx); err != nil {
		return nil, err
	}
	if arts.UserDescriptions, err = s.UserDescriptions(ctx); err != nil {
		return nil, err
	}
	if arts.Items, err = s.Items(ctx); err != nil {
		return nil, err
	}
	if arts.ItemIndex, err = s.ItemIndex(ctx); err != nil {
		return nil, err
	}
	if arts.LanguageID, err = s.LanguageIDs(ctx); err != nil {
		return nil, err
	}
	return arts, nil
}

// SaveHistoryArtifacts 将全部派生工件写入存储。
// 任一表失败即返回错误，已写入的表保持其事务语义（整表成功或失败）。
func SaveHistoryArtifacts(ctx context.Context, s core.ArtifactStore, arts *core.HistoryArtifacts) error {
	if err := s.SaveSortedHistories(ctx, arts.SortedHistories); err != nil {
		return err
	}
	if err := s.SaveTextualProfiles(ctx, arts.TextualProfiles); err != nil {
		return err
	}
	if err := s.SaveUserDescriptions(ctx, arts.UserDescriptions); err != nil {
		return err
	}
	if err := s.SaveItems(ctx, arts.Items); err != nil {
		return err
	}
	if err := s.SaveItemIndex(ctx, arts.ItemIndex); err != nil {
		return err
	}
	return s.SaveLanguageIDs(ctx, arts.LanguageID)
}
