package core

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）
//
// 使用场景：
//   - History 错误：MISSING_SOURCE（致命，终止预处理阶段）
//   - Vector 错误：MISSING_ARTIFACT, REBUILD_FAILED
//   - Eval 错误：UNAVAILABLE（人口统计数据缺失时降级）
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
type DomainError struct {
	Code    string // 错误代码（如 "MISSING_SOURCE", "NOT_FOUND"）
	Message string // 错误消息
	Module  string // 模块名称（如 "history", "vector", "eval"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*DomainError)
	return ok
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	if domainErr, ok := err.(*DomainError); ok {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeMissingSource   = "MISSING_SOURCE"   // 必需的输入文件不存在
	ErrorCodeMissingArtifact = "MISSING_ARTIFACT" // 索引工件缺失（触发按需重建）
	ErrorCodeRebuildFailed   = "REBUILD_FAILED"   // 索引重建失败（跳过本轮验证）
	ErrorCodeUnavailable     = "UNAVAILABLE"      // 数据/服务不可用（降级继续）
	ErrorCodeNotFound        = "NOT_FOUND"        // 资源不存在
	ErrorCodeNotSupported    = "NOT_SUPPORTED"    // 操作不支持
	ErrorCodeInvalidInput    = "INVALID_INPUT"    // 输入无效
	ErrorCodeInternalError   = "INTERNAL_ERROR"   // 内部错误
)

// 模块名称常量
const (
	ModuleHistory = "history" // 历史预处理模块
	ModuleDataset = "dataset" // 批流模块
	ModuleTrain   = "train"   // 训练模块
	ModuleEval    = "eval"    // 验证模块
	ModuleVector  = "vector"  // 向量索引模块
	ModuleStore   = "store"   // 存储模块
	ModuleModel   = "model"   // 嵌入模型模块
)

// IsMissingSource 检查错误是否为必需输入文件缺失
func IsMissingSource(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeMissingSource
	}
	return false
}

// IsMissingArtifact 检查错误是否为索引工件缺失
func IsMissingArtifact(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeMissingArtifact
	}
	return false
}

// IsRebuildFailed 检查错误是否为索引重建失败
func IsRebuildFailed(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeRebuildFailed
	}
	return false
}

// IsUnavailable 检查错误是否为数据/服务不可用
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeUnavailable
	}
	return false
}

// IsNotFound 检查错误是否为资源不存在
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}
