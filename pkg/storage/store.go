package storage

import (
	"context"
	"errors"
	"io"

	"ledgerseal/pkg/types"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrNotFound = errors.New("object not found")

	// ErrStoreUnavailable 连接失败、超时、服务端 5xx
	ErrStoreUnavailable = errors.New("content store unavailable")

	// ErrStoreRejected 存储在应用层拒绝了请求 (配额、权限、4xx)
	ErrStoreRejected = errors.New("content store rejected the upload")

	// ErrContentMismatch 取回的内容与账本记录的 Digest 不一致
	ErrContentMismatch = errors.New("stored content does not match the ledger digest")
)

// Store defines the interface for a content-addressable backend.
// Implementations can be local disk, S3-compatible object storage, or an IPFS node.
type Store interface {
	// Put 上传原始字节，返回可用于之后取回的地址
	// 同样的字节重复上传必须是幂等的
	Put(ctx context.Context, data []byte) (types.ContentAddress, error)

	// Get 根据地址读取原始数据 (verify 交叉校验时使用)
	// 返回 io.ReadCloser 以支持流式读取大文件
	Get(ctx context.Context, addr types.ContentAddress) (io.ReadCloser, error)

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, addr types.ContentAddress) (bool, error)
}

// AddressOf 计算字节的 CIDv1 (raw codec + sha2-256)
// 对于单块文件，它与 IPFS `add --cid-version=1 --raw-leaves` 的结果一致
func AddressOf(data []byte) (types.ContentAddress, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return types.ContentAddress(cid.NewCidV1(cid.Raw, mh).String()), nil
}

// ParseAddress 校验地址是否为合法 CID
func ParseAddress(addr types.ContentAddress) (cid.Cid, error) {
	return cid.Decode(string(addr))
}
