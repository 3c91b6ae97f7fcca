package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ledgerseal/pkg/storage"
	"ledgerseal/pkg/types"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: /home/user/.ledgerseal/objects
}

// NewAdapter 创建一个新的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// layout 返回地址对应的物理路径
// CIDv1 的前缀固定 (bafkrei...)，所以用最后 2 个字符做 Sharding
// Example: "bafkrei...yeq" -> root/eq/bafkrei...yeq
func (s *Adapter) layout(addr types.ContentAddress) string {
	a := string(addr)
	if len(a) < 2 {
		return filepath.Join(s.rootPath, a)
	}
	return filepath.Join(s.rootPath, a[len(a)-2:], a)
}

func (s *Adapter) Put(ctx context.Context, data []byte) (types.ContentAddress, error) {
	addr, err := storage.AddressOf(data)
	if err != nil {
		return "", storage.Rejected("address", err)
	}
	targetPath := s.layout(addr)

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return addr, nil
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", storage.Unavailable("mkdir", err)
	}

	// 3. 原子写入：先写临时文件再 Rename
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return "", storage.Unavailable("create temp", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return "", storage.Unavailable("write", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", storage.Unavailable("close", err)
	}

	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return "", storage.Unavailable("rename", err)
	}

	return addr, nil
}

func (s *Adapter) Get(ctx context.Context, addr types.ContentAddress) (io.ReadCloser, error) {
	f, err := os.Open(s.layout(addr))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, addr types.ContentAddress) (bool, error) {
	_, err := os.Stat(s.layout(addr))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
