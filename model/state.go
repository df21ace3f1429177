package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// 检查点布局：每个保存的 epoch 一个目录（model_epoch_<N>），
// 内含序列化的模型状态文件。状态一经写出不再修改，后续检查点
// 取代而不删除早先的。

// stateFile 是目录内的模型状态文件名。
const stateFile = "model.gob"

// twoTowerState 是 gob 序列化负载。
type twoTowerState struct {
	Dim         int
	TextBuckets int
	IDBuckets   int
	ItemText    [][]float64
	ItemID      [][]float64
	UserText    [][]float64
	UserID      [][]float64
}

// Save 将模型状态写入检查点目录（write-then-rename）。
func (m *TwoTower) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(twoTowerState{
		Dim:         m.dim,
		TextBuckets: m.textBuckets,
		IDBuckets:   m.idBuckets,
		ItemText:    m.itemText,
		ItemID:      m.itemID,
		UserText:    m.userText,
		UserID:      m.userID,
	})
	if err != nil {
		return fmt.Errorf("encode model state: %w", err)
	}

	path := filepath.Join(dir, stateFile)
	tmp, err := os.CreateTemp(dir, stateFile+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Load 从检查点目录恢复模型状态。
func (m *TwoTower) Load(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		return fmt.Errorf("read model state: %w", err)
	}
	var state twoTowerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("decode model state: %w", err)
	}

	m.dim = state.Dim
	m.textBuckets = state.TextBuckets
	m.idBuckets = state.IDBuckets
	m.itemText = state.ItemText
	m.itemID = state.ItemID
	m.userText = state.UserText
	m.userID = state.UserID
	m.lastItems = nil
	m.lastUsers = nil
	return nil
}
