package vector

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rushteam/recomtext/core"
)

// 工件序列化。三件套必须同时存在才可加载；任一缺失返回
// MISSING_ARTIFACT，由验证方触发按需重建。

// indexState 是索引文件的 gob 负载（检索向量，已归一）。
type indexState struct {
	Metric  string
	Dim     int
	Vectors [][]float64
}

// embeddingsMagic 标记原始嵌入二进制文件头。
var embeddingsMagic = [4]byte{'R', 'T', 'E', 'B'}

// ArtifactsExist 检查三件套工件是否齐备。
func ArtifactsExist(art core.IndexArtifacts) bool {
	for _, p := range []string{art.IndexPath, art.IDsPath, art.EmbeddingsPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Load 从工件加载索引。
func Load(art core.IndexArtifacts) (*FlatIndex, error) {
	if !ArtifactsExist(art) {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeMissingArtifact,
			"vector: index artifacts missing")
	}

	data, err := os.ReadFile(art.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var state indexState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	idsData, err := os.ReadFile(art.IDsPath)
	if err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(idsData, &ids); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}

	raw, err := readEmbeddings(art.EmbeddingsPath)
	if err != nil {
		return nil, err
	}

	if len(ids) != len(state.Vectors) || len(ids) != len(raw) {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
			"vector: artifact arrays are not parallel")
	}

	return &FlatIndex{
		metric:  state.Metric,
		dim:     state.Dim,
		ids:     ids,
		vectors: state.Vectors,
		raw:     raw,
	}, nil
}

// Save 将索引原子写入三件套工件：先把三个负载全部编码并写到目标
// 目录内的临时文件，全部就绪后才逐个 rename 替换。任一编码或写入
// 失败时不触碰已有工件，读方不会观察到新旧混杂的三件套。
func (idx *FlatIndex) Save(art core.IndexArtifacts) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(indexState{
		Metric:  idx.metric,
		Dim:     idx.dim,
		Vectors: idx.vectors,
	}); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	idsData, err := json.Marshal(idx.ids)
	if err != nil {
		return fmt.Errorf("encode ids: %w", err)
	}
	embData, err := encodeEmbeddings(idx.raw)
	if err != nil {
		return err
	}

	files := []struct {
		path string
		data []byte
	}{
		{art.IndexPath, buf.Bytes()},
		{art.IDsPath, idsData},
		{art.EmbeddingsPath, embData},
	}

	tmps := make([]string, 0, len(files))
	cleanup := func() {
		for _, tmp := range tmps {
			os.Remove(tmp)
		}
	}
	for _, f := range files {
		tmp, err := writeTemp(f.path, f.data)
		if err != nil {
			cleanup()
			return err
		}
		tmps = append(tmps, tmp)
	}
	for i, f := range files {
		if err := os.Rename(tmps[i], f.path); err != nil {
			cleanup()
			return err
		}
	}
	return nil
}

func encodeEmbeddings(rows [][]float64) ([]byte, error) {
	dim := 0
	if len(rows) > 0 {
		dim = len(rows[0])
	}
	var buf bytes.Buffer
	buf.Write(embeddingsMagic[:])
	if err := binary.Write(&buf, binary.LittleEndian, int64(len(rows))); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, int64(dim)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if len(row) != dim {
			return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
				"vector: ragged embedding rows")
		}
		if err := binary.Write(&buf, binary.LittleEndian, row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func readEmbeddings(path string) ([][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read embeddings: %w", err)
	}
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil || magic != embeddingsMagic {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
			"vector: bad embeddings file header")
	}
	var rows, dim int64
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("read embeddings header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read embeddings header: %w", err)
	}

	// 头部计数必须与剩余负载字节数严格一致，防止损坏的工件触发
	// 超界分配或读到截断数据
	rest := int64(r.Len())
	if rows < 0 || dim < 0 || dim > rest/8 ||
		(rows > 0 && (dim == 0 || rows > rest/(8*dim))) ||
		rows*dim*8 != rest {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
			"vector: embeddings header counts do not match payload")
	}

	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, dim)
		if err := binary.Read(r, binary.LittleEndian, out[i]); err != nil {
			return nil, fmt.Errorf("read embeddings row %d: %w", i, err)
		}
	}
	return out, nil
}

// writeTemp 把 data 完整落盘到 path 同目录的临时文件，返回临时文件名。
// rename 由调用方在所有工件就绪后统一执行。
func writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return tmpName, nil
}
