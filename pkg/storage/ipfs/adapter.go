package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ledgerseal/pkg/storage"
	"ledgerseal/pkg/types"

	shell "github.com/ipfs/go-ipfs-api"
)

// Kubo 命令错误码 (cmds.ErrorType)
const (
	codeClient    = 1
	codeNotFound  = 3
	codeForbidden = 5
)

// Adapter 通过 Kubo RPC (/api/v0) 与 IPFS 节点交互，实现 storage.Store
type Adapter struct {
	sh  *shell.Shell
	pin bool
}

// Config 用于初始化 Adapter
type Config struct {
	URL     string        // 例如 http://127.0.0.1:5001
	Pin     bool          // 上传后是否 pin，防止被 GC
	Timeout time.Duration // 单个 HTTP 请求的上限，0 表示只受 ctx 控制
}

// blockStat 对应 /api/v0/block/stat 的返回
type blockStat struct {
	Key  string `json:"Key"`
	Size int    `json:"Size"`
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ipfs api url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid ipfs api url: %w", err)
	}
	sh := shell.NewShellWithClient(strings.TrimRight(cfg.URL, "/"), &http.Client{Timeout: cfg.Timeout})
	return &Adapter{sh: sh, pin: cfg.Pin}, nil
}

// Put 上传字节，返回节点计算出的 CID
// cid-version=1 + raw-leaves 使小文件的地址与 storage.AddressOf 一致
func (a *Adapter) Put(ctx context.Context, data []byte) (types.ContentAddress, error) {
	type result struct {
		hash string
		err  error
	}

	if err := ctx.Err(); err != nil {
		return "", storage.Unavailable("ipfs add", err)
	}

	// shell.Add 不接受 ctx；请求本身受 http.Client 超时约束
	done := make(chan result, 1)
	go func() {
		hash, err := a.sh.Add(bytes.NewReader(data),
			shell.CidVersion(1),
			shell.RawLeaves(true),
			shell.Pin(a.pin),
		)
		done <- result{hash: hash, err: err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return "", storage.Unavailable("ipfs add", ctx.Err())
	case r = <-done:
	}
	if r.err != nil {
		return "", classify("ipfs add", r.err)
	}

	addr := types.ContentAddress(r.hash)
	if _, err := storage.ParseAddress(addr); err != nil {
		return "", storage.Rejected("ipfs add", fmt.Errorf("node returned invalid cid %q: %w", r.hash, err))
	}
	return addr, nil
}

// Get 通过 /api/v0/cat 流式读取内容
func (a *Adapter) Get(ctx context.Context, addr types.ContentAddress) (io.ReadCloser, error) {
	resp, err := a.sh.Request("cat", addr.String()).Send(ctx)
	if err != nil {
		return nil, classify("ipfs cat", err)
	}
	if resp.Error != nil {
		resp.Close()
		return nil, classify("ipfs cat", resp.Error)
	}
	return resp.Output, nil
}

// Has 只查询本地 blockstore，不触发网络检索
func (a *Adapter) Has(ctx context.Context, addr types.ContentAddress) (bool, error) {
	var stat blockStat
	err := a.sh.Request("block/stat", addr.String()).
		Option("offline", true).
		Exec(ctx, &stat)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, classify("ipfs block/stat", err)
	}
}

// classify 把 shell 的错误映射到存储错误分类
func classify(op string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, op)
	}

	var apiErr *shell.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeClient, codeForbidden:
			return storage.Rejected(op, err)
		default:
			// 节点内部错误、网关错误，稍后可能恢复
			return storage.Unavailable(op, err)
		}
	}
	return storage.Unavailable(op, err)
}

func isNotFound(err error) bool {
	var apiErr *shell.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == codeNotFound {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	// 404 时 shell 报告 "command not found"，那是 API 路径错误，不是对象缺失
	return strings.Contains(msg, "not found") && !strings.Contains(msg, "command not found")
}
