package commands

import (
	"context"
	"fmt"

	"ledgerseal/pkg/app"
	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/client"
	"ledgerseal/pkg/core"
	"ledgerseal/pkg/types"
)

// attester 屏蔽本地执行与远程执行的差别
type attester interface {
	Upload(ctx context.Context, t attest.Target) (*attest.UploadResult, error)
	// addr 非空时同时交叉校验内容存储中的副本
	Verify(ctx context.Context, t attest.Target, addr types.ContentAddress) (*attest.VerifyResult, error)
	Resolve(ctx context.Context, txID types.TxID) (attest.Outcome, uint64, error)
	Close() error
}

func (c *cli) defaultAttester(ctx context.Context, mode app.Mode) (attester, error) {
	if addr := c.settings.Server.Remote; addr != "" {
		cl, err := client.New(addr)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("remote mode", "server", addr)
		return remoteAttester{c: cl}, nil
	}

	a, err := app.NewApp(ctx, c.settings, mode, c.logger)
	if err != nil {
		return nil, err
	}
	return localAttester{app: a}, nil
}

// -----------------------------------------------------------------------------
// 本地：直接使用 Orchestrator
// -----------------------------------------------------------------------------

type localAttester struct {
	app *app.App
}

func (l localAttester) Upload(ctx context.Context, t attest.Target) (*attest.UploadResult, error) {
	return l.app.Orchestrator.Upload(ctx, t.Path, t.Name)
}

func (l localAttester) Verify(ctx context.Context, t attest.Target, addr types.ContentAddress) (*attest.VerifyResult, error) {
	return l.app.Orchestrator.VerifyStored(ctx, t.Path, t.Name, addr)
}

func (l localAttester) Resolve(ctx context.Context, txID types.TxID) (attest.Outcome, uint64, error) {
	rl, ok := l.app.ReceiptLookup()
	if !ok {
		return attest.OutcomeUnknown, 0, fmt.Errorf("ledger backend does not support receipt lookup")
	}
	o, r, err := attest.Resolve(ctx, rl, txID)
	if r != nil {
		return o, r.BlockNumber, err
	}
	return o, 0, err
}

func (l localAttester) Close() error { return l.app.Close() }

// -----------------------------------------------------------------------------
// 远程：本地读取文件，交给 ledgerseal-server
// -----------------------------------------------------------------------------

type remoteAttester struct {
	c *client.Client
}

func (r remoteAttester) Upload(ctx context.Context, t attest.Target) (*attest.UploadResult, error) {
	_, data, err := core.DigestFile(t.Path)
	if err != nil {
		return &attest.UploadResult{Name: t.Name, Outcome: attest.OutcomeIOFailure}, inputError(err)
	}
	return r.c.Upload(ctx, t.Name, data)
}

func (r remoteAttester) Verify(ctx context.Context, t attest.Target, addr types.ContentAddress) (*attest.VerifyResult, error) {
	_, data, err := core.DigestFile(t.Path)
	if err != nil {
		return &attest.VerifyResult{Name: t.Name, Outcome: attest.OutcomeIOFailure}, inputError(err)
	}
	return r.c.Verify(ctx, t.Name, data, addr)
}

func (r remoteAttester) Resolve(ctx context.Context, txID types.TxID) (attest.Outcome, uint64, error) {
	return r.c.Resolve(ctx, txID)
}

func (r remoteAttester) Close() error { return r.c.Close() }
