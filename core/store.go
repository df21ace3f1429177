package core

import "context"

// ArtifactStore 是派生表格工件的存储领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 预处理失败是致命的且不落半成品：Save* 要么整表成功要么整表失败
//
// 实现：
//   - store.SQLiteStore 实现此接口（持久化列式表）
//   - store.MemoryStore 实现此接口（测试/原型）
type ArtifactStore interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	SaveSortedHistories(ctx context.Context, rows []OwnerHistory) error
	SortedHistories(ctx context.Context) ([]OwnerHistory, error)

	SaveTextualProfiles(ctx context.Context, rows []OwnerTextualProfile) error
	TextualProfiles(ctx context.Context) ([]OwnerTextualProfile, error)

	SaveUserDescriptions(ctx context.Context, rows []UserDescription) error
	UserDescriptions(ctx context.Context) ([]UserDescription, error)

	SaveItems(ctx context.Context, rows []ItemInfo) error
	Items(ctx context.Context) ([]ItemInfo, error)

	// 两张映射侧表
	SaveItemIndex(ctx context.Context, m map[string]int64) error
	ItemIndex(ctx context.Context) (map[string]int64, error)
	SaveLanguageIDs(ctx context.Context, m map[string]int64) error
	LanguageIDs(ctx context.Context) (map[string]int64, error)

	// 人口统计画像表（可缺失；缺失时验证降级）
	SaveDemographics(ctx context.Context, rows []DemographicProfile) error
	Demographics(ctx context.Context) ([]DemographicProfile, error)

	// Close 关闭连接/释放资源
	Close() error
}

// MetadataStore 是验证阶段按物品 id 解析元数据（类目等）的读接口。
// 可由 ArtifactStore 直接适配，也可在其前面加 redis 缓存。
type MetadataStore interface {
	// GetItem 按物品假名 id 取物品信息；不存在时返回 NOT_FOUND。
	GetItem(ctx context.Context, itemID string) (*ItemInfo, error)
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示记录不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)
