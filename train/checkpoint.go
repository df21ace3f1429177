package train

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/recomtext/core"
)

const metricsFile = "metrics.yaml"

// Checkpointer 负责把模型按轮次落盘，目录名形如 model_epoch_<N>。
type Checkpointer struct {
	Dir string
}

func NewCheckpointer(dir string) *Checkpointer {
	return &Checkpointer{Dir: dir}
}

// Path 返回指定轮次的检查点目录
func (c *Checkpointer) Path(epoch int) string {
	return filepath.Join(c.Dir, fmt.Sprintf("model_epoch_%d", epoch))
}

// Save 保存模型权重，metrics 非空时附带一份指标快照
func (c *Checkpointer) Save(epoch int, model core.TrainableModel, metrics core.Metrics) (string, error) {
	dir := c.Path(epoch)
	if err := model.Save(dir); err != nil {
		return "", err
	}
	if len(metrics) > 0 {
		data, err := yaml.Marshal(metrics)
		if err != nil {
			return "", fmt.Errorf("marshal metrics: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, metricsFile), data, 0o644); err != nil {
			return "", fmt.Errorf("write metrics snapshot: %w", err)
		}
	}
	return dir, nil
}
