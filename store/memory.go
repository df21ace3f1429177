package store

import (
	"context"
	"sync"

	"github.com/rushteam/recomtext/core"
)

// MemoryStore 是 ArtifactStore 的内存实现，适合测试与原型验证。
// 不支持持久化，进程重启后数据丢失。
type MemoryStore struct {
	mu sync.RWMutex

	histories    []core.OwnerHistory
	profiles     []core.OwnerTextualProfile
	descriptions []core.UserDescription
	items        []core.ItemInfo
	itemByID     map[string]int
	itemIndex    map[string]int64
	languageIDs  map[string]int64
	demographics []core.DemographicProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		itemByID:    make(map[string]int),
		itemIndex:   make(map[string]int64),
		languageIDs: make(map[string]int64),
	}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) SaveSortedHistories(_ context.Context, rows []core.OwnerHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories = append([]core.OwnerHistory(nil), rows...)
	return nil
}

func (m *MemoryStore) SortedHistories(context.Context) ([]core.OwnerHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.OwnerHistory(nil), m.histories...), nil
}

func (m *MemoryStore) SaveTextualProfiles(_ context.Context, rows []core.OwnerTextualProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = append([]core.OwnerTextualProfile(nil), rows...)
	return nil
}

func (m *MemoryStore) TextualProfiles(context.Context) ([]core.OwnerTextualProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.OwnerTextualProfile(nil), m.profiles...), nil
}

func (m *MemoryStore) SaveUserDescriptions(_ context.Context, rows []core.UserDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptions = append([]core.UserDescription(nil), rows...)
	return nil
}

func (m *MemoryStore) UserDescriptions(context.Context) ([]core.UserDescription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.UserDescription(nil), m.descriptions...), nil
}

func (m *MemoryStore) SaveItems(_ context.Context, rows []core.ItemInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]core.ItemInfo(nil), rows...)
	m.itemByID = make(map[string]int, len(rows))
	for i := range m.items {
		if _, seen := m.itemByID[m.items[i].ItemID]; !seen {
			m.itemByID[m.items[i].ItemID] = i
		}
	}
	return nil
}

func (m *MemoryStore) Items(context.Context) ([]core.ItemInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.ItemInfo(nil), m.items...), nil
}

func (m *MemoryStore) SaveItemIndex(_ context.Context, idx map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemIndex = cloneMapping(idx)
	return nil
}

func (m *MemoryStore) ItemIndex(context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneMapping(m.itemIndex), nil
}

func (m *MemoryStore) SaveLanguageIDs(_ context.Context, ids map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.languageIDs = cloneMapping(ids)
	return nil
}

func (m *MemoryStore) LanguageIDs(context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneMapping(m.languageIDs), nil
}

func (m *MemoryStore) SaveDemographics(_ context.Context, rows []core.DemographicProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.demographics = append([]core.DemographicProfile(nil), rows...)
	return nil
}

func (m *MemoryStore) Demographics(context.Context) ([]core.DemographicProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.DemographicProfile(nil), m.demographics...), nil
}

// GetItem 实现 MetadataStore
func (m *MemoryStore) GetItem(_ context.Context, itemID string) (*core.ItemInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.itemByID[itemID]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	info := m.items[i]
	return &info, nil
}

func cloneMapping(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	_ core.ArtifactStore = (*MemoryStore)(nil)
	_ core.MetadataStore = (*MemoryStore)(nil)
)
