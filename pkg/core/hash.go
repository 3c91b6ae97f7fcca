package core

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"ledgerseal/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// ErrIOFailure 表示本地文件无法被完整读取
// 出现该错误时不会计算 Digest，也不会发起任何网络调用。
var ErrIOFailure = errors.New("io failure")

// 定义确定性 (Canonical) CBOR 编码选项
// 账本交易的签名载荷和 RPC 消息都依赖它：相同的值必须得到相同的字节
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	Sort: cbor.SortCanonical,

	// 2. 浮点数必须使用64位表示
	ShortestFloat: cbor.ShortestFloatNone,

	// 3. 时间格式化为 Unix 整数，不生成 Tag 0/1
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 4. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	// RPC 层会直接解码来自网络的字节，必须限制容器大小和嵌套深度
	MaxArrayElements: 10000,
	MaxMapPairs:      10000,
	MaxNestedLevels:  32,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// ComputeDigest 计算原始字节的 SHA-256
// 纯函数：相同输入永远得到相同输出
func ComputeDigest(data []byte) types.Digest {
	return types.Digest(sha256.Sum256(data))
}

// DigestReader 把 reader 完整读入内存后计算 Digest
// 读取中途失败时返回 ErrIOFailure，绝不对残缺内容计算指纹
func DigestReader(r io.Reader) (types.Digest, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return types.Digest{}, nil, fmt.Errorf("%w: read failed: %v", ErrIOFailure, err)
	}
	return ComputeDigest(data), data, nil
}

// DigestFile 读取整个文件并计算 Digest，同时返回文件内容
// 内容会被复用于上传到内容存储，避免重复读盘
func DigestFile(path string) (types.Digest, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Digest{}, nil, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return types.Digest{}, nil, fmt.Errorf("%w: stat %s: %v", ErrIOFailure, path, err)
	}
	if stat.IsDir() {
		return types.Digest{}, nil, fmt.Errorf("%w: %s is a directory", ErrIOFailure, path)
	}

	d, data, err := DigestReader(f)
	if err != nil {
		return types.Digest{}, nil, err
	}

	// 普通文件在读取过程中被截断或追加，说明内容不稳定
	// /proc 之类的特殊文件 Size 为 0，不做这项检查
	if stat.Mode().IsRegular() && stat.Size() > 0 && int64(len(data)) != stat.Size() {
		return types.Digest{}, nil, fmt.Errorf("%w: %s changed during read (stat %d bytes, read %d)",
			ErrIOFailure, path, stat.Size(), len(data))
	}

	return d, data, nil
}

// Marshal 使用确定性 CBOR 编码
func Marshal(v any) ([]byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return data, nil
}

// DecodeObject 通用的解码函数 (供外部使用)
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

// CalculateHash 计算对象确定性编码后的 SHA-256，同时返回编码结果
func CalculateHash(v any) (types.Digest, []byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return types.Digest{}, nil, err
	}
	return ComputeDigest(data), data, nil
}
