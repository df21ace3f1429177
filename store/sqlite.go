package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rushteam/recomtext/core"
)

// SQLiteStore 是 ArtifactStore 的持久化实现，基于纯 Go 的 sqlite 驱动
// （modernc.org/sqlite），无 cgo 依赖。
//
// 设计原则：
//   - 整表替换：每次 Save* 在单事务内清空并重写整张表，
//     失败回滚，不落半成品
//   - 行序用 pos 列显式保存，读取按 pos 还原
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sorted_histories (
	pos        INTEGER PRIMARY KEY,
	owner_hash TEXT NOT NULL UNIQUE,
	item_ids   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS textual_profiles (
	pos               INTEGER PRIMARY KEY,
	owner_hash        TEXT NOT NULL UNIQUE,
	detailed_view     TEXT NOT NULL,
	primary_languages TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_descriptions (
	pos         INTEGER PRIMARY KEY,
	owner_hash  TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
	pos              INTEGER PRIMARY KEY,
	item_id          TEXT NOT NULL,
	item             TEXT NOT NULL,
	description      TEXT NOT NULL,
	primary_language TEXT NOT NULL,
	language_id      INTEGER NOT NULL,
	languages        TEXT NOT NULL,
	topics           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_item_id ON items (item_id);
CREATE TABLE IF NOT EXISTS item_index (
	item_id TEXT PRIMARY KEY,
	idx     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS language_ids (
	name TEXT PRIMARY KEY,
	id   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS demographics (
	pos       INTEGER PRIMARY KEY,
	user_hash TEXT NOT NULL UNIQUE,
	age_group TEXT NOT NULL,
	sex       TEXT NOT NULL,
	region    TEXT NOT NULL
);
`

// NewSQLiteStore 打开（必要时创建）工件数据库
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// replaceTable 在单事务内清空并重写一张表
func (s *SQLiteStore) replaceTable(ctx context.Context, table, insert string, rows [][]interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveSortedHistories(ctx context.Context, rows []core.OwnerHistory) error {
	args := make([][]interface{}, len(rows))
	for i, r := range rows {
		ids, err := json.Marshal(r.ItemIDs)
		if err != nil {
			return err
		}
		args[i] = []interface{}{i, r.OwnerHash, string(ids)}
	}
	return s.replaceTable(ctx, "sorted_histories",
		"INSERT INTO sorted_histories (pos, owner_hash, item_ids) VALUES (?, ?, ?)", args)
}

func (s *SQLiteStore) SortedHistories(ctx context.Context) ([]core.OwnerHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT owner_hash, item_ids FROM sorted_histories ORDER BY pos")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.OwnerHistory
	for rows.Next() {
		var h core.OwnerHistory
		var ids string
		if err := rows.Scan(&h.OwnerHash, &ids); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &h.ItemIDs); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveTextualProfiles(ctx context.Context, rows []core.OwnerTextualProfile) error {
	args := make([][]interface{}, len(rows))
	for i, r := range rows {
		langs, err := json.Marshal(r.PrimaryLanguages)
		if err != nil {
			return err
		}
		args[i] = []interface{}{i, r.OwnerHash, r.DetailedView, string(langs)}
	}
	return s.replaceTable(ctx, "textual_profiles",
		"INSERT INTO textual_profiles (pos, owner_hash, detailed_view, primary_languages) VALUES (?, ?, ?, ?)", args)
}

func (s *SQLiteStore) TextualProfiles(ctx context.Context) ([]core.OwnerTextualProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT owner_hash, detailed_view, primary_languages FROM textual_profiles ORDER BY pos")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.OwnerTextualProfile
	for rows.Next() {
		var p core.OwnerTextualProfile
		var langs string
		if err := rows.Scan(&p.OwnerHash, &p.DetailedView, &langs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(langs), &p.PrimaryLanguages); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveUserDescriptions(ctx context.Context, rows []core.UserDescription) error {
	args := make([][]interface{}, len(rows))
	for i, r := range rows {
		args[i] = []interface{}{i, r.OwnerHash, r.Description}
	}
	return s.replaceTable(ctx, "user_descriptions",
		"INSERT INTO user_descriptions (pos, owner_hash, description) VALUES (?, ?, ?)", args)
}

func (s *SQLiteStore) UserDescriptions(ctx context.Context) ([]core.UserDescription, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT owner_hash, description FROM user_descriptions ORDER BY pos")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.UserDescription
	for rows.Next() {
		var d core.UserDescription
		if err := rows.Scan(&d.OwnerHash, &d.Description); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveItems(ctx context.Context, rows []core.ItemInfo) error {
	args := make([][]interface{}, len(rows))
	for i, r := range rows {
		langs, err := json.Marshal(r.Languages)
		if err != nil {
			return err
		}
		topics, err := json.Marshal(r.Topics)
		if err != nil {
			return err
		}
		args[i] = []interface{}{i, r.ItemID, r.Item, r.Description, r.PrimaryLanguage, r.LanguageID, string(langs), string(topics)}
	}
	return s.replaceTable(ctx, "items",
		"INSERT INTO items (pos, item_id, item, description, primary_language, language_id, languages, topics) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", args)
}

func (s *SQLiteStore) Items(ctx context.Context) ([]core.ItemInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT item_id, item, description, primary_language, language_id, languages, topics FROM items ORDER BY pos")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ItemInfo
	for rows.Next() {
		info, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

func scanItem(scan func(...interface{}) error) (*core.ItemInfo, error) {
	var info core.ItemInfo
	var langs, topics string
	if err := scan(&info.ItemID, &info.Item, &info.Description, &info.PrimaryLanguage, &info.LanguageID, &langs, &topics); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(langs), &info.Languages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topics), &info.Topics); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *SQLiteStore) saveMapping(ctx context.Context, table, insert string, m map[string]int64) error {
	args := make([][]interface{}, 0, len(m))
	for k, v := range m {
		args = append(args, []interface{}{k, v})
	}
	return s.replaceTable(ctx, table, insert, args)
}

func (s *SQLiteStore) loadMapping(ctx context.Context, query string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k string
		var v int64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveItemIndex(ctx context.Context, m map[string]int64) error {
	return s.saveMapping(ctx, "item_index",
		"INSERT INTO item_index (item_id, idx) VALUES (?, ?)", m)
}

func (s *SQLiteStore) ItemIndex(ctx context.Context) (map[string]int64, error) {
	return s.loadMapping(ctx, "SELECT item_id, idx FROM item_index")
}

func (s *SQLiteStore) SaveLanguageIDs(ctx context.Context, m map[string]int64) error {
	return s.saveMapping(ctx, "language_ids",
		"INSERT INTO language_ids (name, id) VALUES (?, ?)", m)
}

func (s *SQLiteStore) LanguageIDs(ctx context.Context) (map[string]int64, error) {
	return s.loadMapping(ctx, "SELECT name, id FROM language_ids")
}

func (s *SQLiteStore) SaveDemographics(ctx context.Context, rows []core.DemographicProfile) error {
	args := make([][]interface{}, len(rows))
	for i, r := range rows {
		args[i] = []interface{}{i, r.UserHash, r.AgeGroup, r.Sex, r.Region}
	}
	return s.replaceTable(ctx, "demographics",
		"INSERT INTO demographics (pos, user_hash, age_group, sex, region) VALUES (?, ?, ?, ?, ?)", args)
}

func (s *SQLiteStore) Demographics(ctx context.Context) ([]core.DemographicProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_hash, age_group, sex, region FROM demographics ORDER BY pos")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.DemographicProfile
	for rows.Next() {
		var p core.DemographicProfile
		if err := rows.Scan(&p.UserHash, &p.AgeGroup, &p.Sex, &p.Region); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetItem 按物品假名 id 取单条物品信息（实现 MetadataStore）
func (s *SQLiteStore) GetItem(ctx context.Context, itemID string) (*core.ItemInfo, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT item_id, item, description, primary_language, language_id, languages, topics FROM items WHERE item_id = ? ORDER BY pos LIMIT 1", itemID)
	info, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

var (
	_ core.ArtifactStore = (*SQLiteStore)(nil)
	_ core.MetadataStore = (*SQLiteStore)(nil)
)
