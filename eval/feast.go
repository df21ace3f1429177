package eval

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"

	"github.com/rushteam/recomtext/core"
)

// feast 在线特征名（<feature table>:<feature>）
const (
	feastFeatureAge     = "user_demographics:age"
	feastFeatureSex     = "user_demographics:sex"
	feastFeatureCountry = "user_demographics:country"

	feastEntityUserHash = "user_hash"
)

// FeastConfig 是 feast 在线特征源配置
type FeastConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Project string `yaml:"project"`
}

// FeastSource 从 Feast Feature Server 拉取验证用户的原始画像字段，
// 经 Ruleset 派生组值后作为 DemographicSource 提供。
//
// 工程特征：
//   - 实时性：优秀（gRPC 低延迟）
//   - 可用性：拉取失败映射为 UNAVAILABLE，验证侧降级为不含 DAS 的指标子集
type FeastSource struct {
	client  *feastsdk.GrpcClient
	project string
	users   []string
	rules   *Ruleset
}

// NewFeastSource 创建 feast 画像源。users 是需要画像的用户假名 id 全集。
func NewFeastSource(cfg FeastConfig, users []string, rules *Ruleset) (*FeastSource, error) {
	port := cfg.Port
	if port == 0 {
		port = 6565
	}
	client, err := feastsdk.NewGrpcClient(cfg.Host, port)
	if err != nil {
		return nil, fmt.Errorf("feast grpc client: %w", err)
	}
	if rules == nil {
		if rules, err = NewRuleset(RulesConfig{}); err != nil {
			return nil, err
		}
	}
	return &FeastSource{
		client:  client,
		project: cfg.Project,
		users:   users,
		rules:   rules,
	}, nil
}

// Profiles 拉取在线特征并派生组值
func (s *FeastSource) Profiles(ctx context.Context) ([]core.DemographicProfile, error) {
	if len(s.users) == 0 {
		return nil, nil
	}

	entities := make([]feastsdk.Row, len(s.users))
	for i, hash := range s.users {
		entities[i] = feastsdk.Row{feastEntityUserHash: feastsdk.StrVal(hash)}
	}

	resp, err := s.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: []string{feastFeatureAge, feastFeatureSex, feastFeatureCountry},
		Entities: entities,
		Project:  s.project,
	})
	if err != nil {
		return nil, core.NewDomainError(core.ModuleEval, core.ErrorCodeUnavailable,
			fmt.Sprintf("feast get online features: %v", err))
	}

	rows := resp.Rows()
	if len(rows) != len(s.users) {
		return nil, core.NewDomainError(core.ModuleEval, core.ErrorCodeUnavailable,
			fmt.Sprintf("feast row count mismatch: expected %d, got %d", len(s.users), len(rows)))
	}

	profiles := make([]core.DemographicProfile, 0, len(rows))
	for i, row := range rows {
		raw := RawProfile{UserHash: s.users[i]}
		if v, ok := row[feastFeatureAge]; ok {
			raw.Age = v.GetInt64Val()
		}
		if v, ok := row[feastFeatureSex]; ok {
			raw.Sex = v.GetStringVal()
		}
		if v, ok := row[feastFeatureCountry]; ok {
			raw.Country = v.GetStringVal()
		}
		profiles = append(profiles, s.rules.Derive(raw))
	}
	return profiles, nil
}

// Close 释放 gRPC 连接
func (s *FeastSource) Close() error {
	return s.client.Close()
}

var _ core.DemographicSource = (*FeastSource)(nil)
