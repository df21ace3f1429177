package history

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashLen 是假名 id 的十六进制长度（SHA-256 前 8 字节）。
// 截断哈希的碰撞概率是已知且可接受的风险，不做重试。
const hashLen = 16

// PseudonymousID 从身份字符串派生定长的确定性假名 id。
// 同一输入在任何运行中都产生同一 id。
func PseudonymousID(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:hashLen]
}
