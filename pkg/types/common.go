// pkg/types/common.go
package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// DigestSize 是 SHA-256 输出长度 (32 字节)
const DigestSize = 32

// Digest 代表文件内容的指纹 (SHA-256 原始字节)
// 这是一个“值对象”，数组类型天然可比较、可复制，不会被意外修改。
type Digest [DigestSize]byte

// Hex 返回小写十六进制表示 (用于展示与账本 Key 编码)
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

func (d Digest) String() string { return d.Hex() }

// IsZero 全零 Digest 在合约里等价于“没有记录”
func (d Digest) IsZero() bool { return d == Digest{} }

// Equal 逐字节比较，不做任何前缀或大小写的宽松匹配
func (d Digest) Equal(other Digest) bool { return bytes.Equal(d[:], other[:]) }

// Bytes 返回一份拷贝
func (d Digest) Bytes() []byte {
	out := make([]byte, DigestSize)
	copy(out, d[:])
	return out
}

// ParseDigest 解析 64 位十六进制字符串 (允许 0x 前缀)
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != DigestSize*2 {
		return d, fmt.Errorf("invalid digest length: got %d hex chars, want %d", len(raw), DigestSize*2)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return d, fmt.Errorf("invalid digest hex: %w", err)
	}
	copy(d[:], b)
	return d, nil
}

// DigestFromBytes 从定长字节构造 Digest
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("invalid digest size: got %d bytes, want %d", len(b), DigestSize)
	}
	copy(d[:], b)
	return d, nil
}

// ContentAddress 是内容存储返回的不透明地址 (通常是 CID)
// 只用于从存储取回数据，永远不参与完整性比较。
type ContentAddress string

func (a ContentAddress) String() string { return string(a) }
func (a ContentAddress) IsZero() bool   { return a == "" }

// TxID 是账本交易的标识符 (例如以太坊的 0x 开头交易哈希)
type TxID string

func (t TxID) String() string { return string(t) }
func (t TxID) IsZero() bool   { return t == "" }

// Short 返回便于展示的前缀
func (t TxID) Short() string {
	s := string(t)
	if len(s) <= 12 {
		return s
	}
	return s[:12]
}
