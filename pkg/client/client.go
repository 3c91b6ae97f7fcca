package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/rpc"
	"ledgerseal/pkg/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// MaxMessageSize 文件整体放进一条消息，上限与服务端一致
const MaxMessageSize = 256 * 1024 * 1024

// Client 封装了与 ledgerseal-server 的连接
// 它把远端响应还原成与本地 Orchestrator 相同的结果和错误
type Client struct {
	conn   *grpc.ClientConn
	attest rpc.AttestClient
}

// New 创建并初始化客户端
// 它只负责创建对象，不负责等待连接就绪
func New(addr string, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(MaxMessageSize),
			grpc.MaxCallSendMsgSize(MaxMessageSize),
		),
		// 保持连接活跃 (确认等待可能长达数分钟)
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(addr, append(opts, extra...)...)
	if err != nil {
		// 这里的 err 通常只是配置错误（如地址格式不对），网络不通不会在这里报错
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}

	return &Client{conn: conn, attest: rpc.NewAttestClient(conn)}, nil
}

// Close 关闭底层连接
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// readyTimeout 等待连接就绪的上限
const readyTimeout = 10 * time.Second

// ready 在发送请求之前确认连接可用
// 连接建立失败时请求还没有离开本进程，结果是确定的
func (c *Client) ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	c.conn.Connect()
	for {
		state := c.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("server %s unreachable (%s)", c.conn.Target(), state)
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("server %s unreachable: %w", c.conn.Target(), ctx.Err())
		}
	}
}

// Upload 把内容发给服务端，由服务端签名提交
func (c *Client) Upload(ctx context.Context, name string, data []byte) (*attest.UploadResult, error) {
	// 1. 连不上服务端：什么都没有提交
	if err := c.ready(ctx); err != nil {
		o := attest.OutcomeLedgerUnavailable
		return &attest.UploadResult{Name: name, Outcome: o}, &attest.OutcomeError{Outcome: o, Err: err}
	}

	// 2. 请求已经发出
	resp, err := c.attest.Upload(ctx, &rpc.UploadRequest{Name: name, Data: data})
	if err != nil {
		// 请求可能已经到达服务端并广播了交易，无法判断
		o := transportOutcome(err, attest.OutcomeUnknown)
		res := &attest.UploadResult{Name: name, Outcome: o}
		if o == attest.OutcomeUnknown {
			return res, nil
		}
		return res, &attest.OutcomeError{Outcome: o, Err: err}
	}

	res := &attest.UploadResult{
		Invocation: resp.Invocation,
		Name:       resp.Name,
		Address:    types.ContentAddress(resp.Address),
		TxID:       types.TxID(resp.TxID),
	}
	if resp.Warning != "" {
		res.StoreErr = errors.New(resp.Warning)
	}
	if res.Digest, err = types.ParseDigest(resp.Digest); err != nil {
		return nil, fmt.Errorf("malformed digest in response: %w", err)
	}
	if res.Outcome, err = attest.ParseOutcome(resp.Outcome); err != nil {
		return nil, err
	}
	return res, remoteError(res.Outcome, resp.Error)
}

// Verify 把内容发给服务端比对
// addr 非空时请求服务端交叉校验存储副本
func (c *Client) Verify(ctx context.Context, name string, data []byte, addr types.ContentAddress) (*attest.VerifyResult, error) {
	resp, err := c.attest.Verify(ctx, &rpc.VerifyRequest{Name: name, Data: data, Address: addr.String()})
	if err != nil {
		o := transportOutcome(err, attest.OutcomeLedgerUnavailable)
		return &attest.VerifyResult{Name: name, Outcome: o}, &attest.OutcomeError{Outcome: o, Err: err}
	}

	res := &attest.VerifyResult{
		Invocation: resp.Invocation,
		Name:       resp.Name,
		Address:    types.ContentAddress(resp.Address),
	}
	if resp.Warning != "" {
		res.StoreErr = errors.New(resp.Warning)
	}
	if res.Digest, err = types.ParseDigest(resp.Digest); err != nil {
		return nil, fmt.Errorf("malformed digest in response: %w", err)
	}
	if resp.Recorded != "" {
		if res.Recorded, err = types.ParseDigest(resp.Recorded); err != nil {
			return nil, fmt.Errorf("malformed recorded digest in response: %w", err)
		}
	}
	if res.Outcome, err = attest.ParseOutcome(resp.Outcome); err != nil {
		return nil, err
	}
	return res, remoteError(res.Outcome, resp.Error)
}

// Resolve 让服务端查询交易的最终结论
func (c *Client) Resolve(ctx context.Context, txID types.TxID) (attest.Outcome, uint64, error) {
	resp, err := c.attest.Resolve(ctx, &rpc.ResolveRequest{TxID: txID.String()})
	if err != nil {
		return attest.OutcomeUnknown, 0, err
	}
	o, err := attest.ParseOutcome(resp.Outcome)
	return o, resp.BlockNumber, err
}

func remoteError(o attest.Outcome, msg string) error {
	if msg == "" {
		return nil
	}
	return &attest.OutcomeError{Outcome: o, Err: errors.New(msg)}
}

// transportOutcome 参数错误属于输入错误，其余按调用方给定的兜底结论
func transportOutcome(err error, fallback attest.Outcome) attest.Outcome {
	if status.Code(err) == codes.InvalidArgument {
		return attest.OutcomeIOFailure
	}
	return fallback
}
