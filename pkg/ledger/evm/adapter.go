package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"ledgerseal/pkg/credentials"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
)

// Backend 是 Adapter 用到的 JSON-RPC 子集，*ethclient.Client 天然满足
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	ChainID         int64 // 0 表示向节点查询
	ContractAddress string
	ContractABI     string
	GasLimit        uint64
	GasPriceGwei    int64 // 0 表示使用节点建议价
	PollInterval    time.Duration
	SubmitTimeout   time.Duration // 构造 + 广播的预算
	ConfirmTimeout  time.Duration // 等待打包的预算
}

func (c Config) withDefaults() Config {
	if c.GasLimit == 0 {
		c.GasLimit = 200000
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 30 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 2 * time.Minute
	}
	return c
}

// Adapter 实现 ledger.Client / ledger.Matcher / ledger.ReceiptLookup
type Adapter struct {
	backend  Backend
	contract *Contract
	signer   *credentials.Signer // 只读场景下可以为 nil
	cfg      Config
	closer   func()
}

// Dial 连接 JSON-RPC 节点并构造 Adapter
func Dial(ctx context.Context, cfg Config, signer *credentials.Signer) (*Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("ledger endpoint is required")
	}
	client, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger endpoint: %w", err)
	}
	a, err := NewAdapter(client, cfg, signer)
	if err != nil {
		client.Close()
		return nil, err
	}
	a.closer = client.Close
	return a, nil
}

func NewAdapter(backend Backend, cfg Config, signer *credentials.Signer) (*Adapter, error) {
	contract, err := ParseContract(cfg.ContractAddress, cfg.ContractABI)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		backend:  backend,
		contract: contract,
		signer:   signer,
		cfg:      cfg.withDefaults(),
	}, nil
}

// Close 释放 RPC 连接
func (a *Adapter) Close() error {
	if a.closer != nil {
		a.closer()
	}
	return nil
}

// SubmitBinding 构造、签名、广播 storeHash 交易，然后等待打包
func (a *Adapter) SubmitBinding(ctx context.Context, name string, digest types.Digest) (*ledger.Receipt, error) {
	if a.signer == nil {
		return nil, ledger.Rejected("sign", credentials.ErrNoCredential)
	}

	input, err := a.contract.packStore(name, digest)
	if err != nil {
		return nil, ledger.Rejected("encode", err)
	}

	// 1. 构造 + 广播 (独立的超时预算)
	submitCtx, cancel := context.WithTimeout(ctx, a.cfg.SubmitTimeout)
	defer cancel()

	signed, err := a.buildTx(submitCtx, input)
	if err != nil {
		return nil, err
	}
	txID := types.TxID(signed.Hash().Hex())

	if err := a.backend.SendTransaction(submitCtx, signed); err != nil {
		// JSON-RPC 错误响应说明节点明确拒绝了交易 (nonce、手续费、签名)
		// 其他错误发生在传输层，交易可能已经到达节点，只能报告未知
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, ledger.Rejected("broadcast", err)
		}
		return nil, &ledger.PendingError{TxID: txID, Cause: err}
	}
	slog.Debug("transaction broadcast", slog.String("tx", txID.String()), slog.String("name", name))

	// 2. 等待确认 (独立的超时预算)
	// 取消只影响等待本身，已经广播的交易仍在网络中
	waitCtx, cancelWait := context.WithTimeout(ctx, a.cfg.ConfirmTimeout)
	defer cancelWait()

	receipt, err := a.waitMined(waitCtx, signed.Hash())
	if err != nil {
		return nil, &ledger.PendingError{TxID: txID, Cause: err}
	}
	return a.toReceipt(txID, receipt)
}

func (a *Adapter) buildTx(ctx context.Context, input []byte) (*ethtypes.Transaction, error) {
	from := a.signer.Address()

	chainID := big.NewInt(a.cfg.ChainID)
	if a.cfg.ChainID == 0 {
		id, err := a.backend.ChainID(ctx)
		if err != nil {
			return nil, classifyPrecheck("chain id", err)
		}
		chainID = id
	}

	nonce, err := a.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classifyPrecheck("nonce", err)
	}

	var gasPrice *big.Int
	if a.cfg.GasPriceGwei > 0 {
		gasPrice = new(big.Int).Mul(big.NewInt(a.cfg.GasPriceGwei), big.NewInt(params.GWei))
	} else {
		gasPrice, err = a.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, classifyPrecheck("gas price", err)
		}
	}

	to := a.contract.Address()
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      a.cfg.GasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), a.signer.PrivateKey())
	if err != nil {
		return nil, ledger.Rejected("sign", err)
	}
	return signed, nil
}

// classifyPrecheck 用于广播之前的查询：节点的 JSON-RPC 错误响应算拒绝，
// 传输层失败说明节点不可达，交易还没有离开本进程
func classifyPrecheck(stage string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return ledger.Rejected(stage, err)
	}
	return ledger.Unavailable(stage, err)
}

// waitMined 轮询交易回执，直到打包或 ctx 结束
func (a *Adapter) waitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := a.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			// 节点临时故障不代表交易失败，继续等
			slog.Debug("receipt poll failed", slog.String("tx", hash.Hex()), slog.Any("err", err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) toReceipt(txID types.TxID, r *ethtypes.Receipt) (*ledger.Receipt, error) {
	if r.Status == ethtypes.ReceiptStatusFailed {
		return nil, ledger.Rejected("execution", fmt.Errorf("transaction %s reverted", txID))
	}
	out := &ledger.Receipt{
		TxID:        txID,
		ConfirmedAt: time.Now().UTC(),
	}
	if a.signer != nil {
		out.Writer = a.signer.Address().Hex()
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out, nil
}

// FetchBinding 调用 getHash；零值代表没有记录
func (a *Adapter) FetchBinding(ctx context.Context, name string) (types.Digest, error) {
	if !a.contract.hasGetter {
		return types.Digest{}, ledger.ErrReadUnsupported
	}
	input, err := a.contract.packGet(name)
	if err != nil {
		return types.Digest{}, fmt.Errorf("encode %s: %w", methodGet, err)
	}
	out, err := a.call(ctx, input)
	if err != nil {
		return types.Digest{}, fmt.Errorf("ledger call %s: %w", methodGet, err)
	}
	d, err := a.contract.unpackGet(out)
	if err != nil {
		return types.Digest{}, err
	}
	if d.IsZero() {
		return types.Digest{}, ledger.ErrNotFound
	}
	return d, nil
}

// MatchBinding 调用 verifyHash
// 合约对不存在的名字返回零值，所以再用全零 Digest 探测一次以区分“没有记录”和“不匹配”
func (a *Adapter) MatchBinding(ctx context.Context, name string, candidate types.Digest) (bool, error) {
	if !a.contract.hasVerify {
		recorded, err := a.FetchBinding(ctx, name)
		if err != nil {
			return false, err
		}
		return recorded.Equal(candidate), nil
	}

	ok, err := a.verify(ctx, name, candidate)
	if err != nil || ok {
		return ok, err
	}

	empty, err := a.verify(ctx, name, types.Digest{})
	if err != nil {
		return false, err
	}
	if empty {
		return false, ledger.ErrNotFound
	}
	return false, nil
}

func (a *Adapter) verify(ctx context.Context, name string, d types.Digest) (bool, error) {
	input, err := a.contract.packVerify(name, d)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", methodVerify, err)
	}
	out, err := a.call(ctx, input)
	if err != nil {
		return false, fmt.Errorf("ledger call %s: %w", methodVerify, err)
	}
	return a.contract.unpackVerify(out)
}

func (a *Adapter) call(ctx context.Context, input []byte) ([]byte, error) {
	to := a.contract.Address()
	return a.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
}

// LookupReceipt 查询之前广播的交易
func (a *Adapter) LookupReceipt(ctx context.Context, txID types.TxID) (*ledger.Receipt, error) {
	hash := common.HexToHash(txID.String())
	r, err := a.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, &ledger.PendingError{TxID: txID}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup receipt %s: %w", txID, err)
	}
	return a.toReceipt(txID, r)
}
