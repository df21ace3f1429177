package eval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/recomtext/core"
)

var (
	celEnv     *cel.Env
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，声明画像原始字段
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("age", cel.IntType),
		cel.Variable("sex", cel.StringType),
		cel.Variable("country", cel.StringType),
	)
}

func getCELEnv() (*cel.Env, error) {
	var err error
	celEnvOnce.Do(func() {
		celEnv, err = initCELEnv()
	})
	if celEnv == nil && err == nil {
		err = fmt.Errorf("cel env not initialized")
	}
	return celEnv, err
}

// 组派生默认规则（CEL 表达式，各自返回组值字符串；返回空串表示缺失）
const (
	defaultAgeGroupRule = `age <= 0 ? "" : (age < 18 ? "under_18" : (age < 30 ? "18_29" : (age < 45 ? "30_44" : (age < 60 ? "45_59" : "60_plus"))))`
	defaultSexRule      = `sex == "m" ? "male" : (sex == "f" ? "female" : sex)`
	defaultRegionRule   = `country`
)

// RawProfile 是派生前的原始画像字段
type RawProfile struct {
	UserHash string
	Age      int64
	Sex      string
	Country  string
}

// RulesConfig 是三个特征的组派生表达式；空串使用默认规则
type RulesConfig struct {
	AgeGroup string `yaml:"age_group"`
	Sex      string `yaml:"sex"`
	Region   string `yaml:"region"`
}

// Ruleset 把原始画像字段派生为人口统计组值。
// 表达式使用 CEL 语法，编译一次后可并发求值。
type Ruleset struct {
	age    cel.Program
	sex    cel.Program
	region cel.Program
}

// NewRuleset 编译组派生规则
func NewRuleset(cfg RulesConfig) (*Ruleset, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	compile := func(expr, fallback string) (cel.Program, error) {
		if expr == "" {
			expr = fallback
		}
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile %q: %v", expr, issues.Err())
		}
		return env.Program(ast)
	}

	rs := &Ruleset{}
	if rs.age, err = compile(cfg.AgeGroup, defaultAgeGroupRule); err != nil {
		return nil, err
	}
	if rs.sex, err = compile(cfg.Sex, defaultSexRule); err != nil {
		return nil, err
	}
	if rs.region, err = compile(cfg.Region, defaultRegionRule); err != nil {
		return nil, err
	}
	return rs, nil
}

// Derive 对单个原始画像求值。规则出错或返回非字符串时该特征置空。
func (r *Ruleset) Derive(raw RawProfile) core.DemographicProfile {
	input := map[string]interface{}{
		"age":     raw.Age,
		"sex":     raw.Sex,
		"country": raw.Country,
	}
	return core.DemographicProfile{
		UserHash: raw.UserHash,
		AgeGroup: evalGroup(r.age, input),
		Sex:      evalGroup(r.sex, input),
		Region:   evalGroup(r.region, input),
	}
}

func evalGroup(prg cel.Program, input map[string]interface{}) string {
	out, _, err := prg.Eval(input)
	if err != nil {
		return ""
	}
	s, ok := out.Value().(string)
	if !ok {
		return ""
	}
	return s
}

// StoreSource 把 ArtifactStore 的画像表适配为 DemographicSource
type StoreSource struct {
	store core.ArtifactStore
}

func NewStoreSource(store core.ArtifactStore) *StoreSource {
	return &StoreSource{store: store}
}

// Profiles 读取画像表；读取失败映射为 UNAVAILABLE，由验证侧降级
func (s *StoreSource) Profiles(ctx context.Context) ([]core.DemographicProfile, error) {
	rows, err := s.store.Demographics(ctx)
	if err != nil {
		return nil, core.NewDomainError(core.ModuleEval, core.ErrorCodeUnavailable,
			fmt.Sprintf("demographics from %s: %v", s.store.Name(), err))
	}
	return rows, nil
}

var _ core.DemographicSource = (*StoreSource)(nil)
