package evm

import (
	"fmt"
	"strings"

	"ledgerseal/pkg/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// 合约入口名
const (
	methodStore  = "storeHash"
	methodGet    = "getHash"
	methodVerify = "verifyHash"
)

// DefaultABI 描述 storeHash / getHash / verifyHash 三个入口
// 部署的合约只暴露 verifyHash 时，通过配置传入它自己的 ABI 即可
const DefaultABI = `[
  {"type":"function","name":"storeHash","stateMutability":"nonpayable",
   "inputs":[{"name":"fileName","type":"string"},{"name":"fileHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"getHash","stateMutability":"view",
   "inputs":[{"name":"fileName","type":"string"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"verifyHash","stateMutability":"view",
   "inputs":[{"name":"fileName","type":"string"},{"name":"fileHash","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]}
]`

// Contract 封装合约地址与 ABI，负责调用数据的编解码
type Contract struct {
	address   common.Address
	abi       abi.ABI
	hasGetter bool
	hasVerify bool
}

// ParseContract 校验地址和 ABI，ABI 为空时使用 DefaultABI
func ParseContract(address, abiJSON string) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address %q", address)
	}
	if strings.TrimSpace(abiJSON) == "" || strings.TrimSpace(abiJSON) == "[]" {
		abiJSON = DefaultABI
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid contract abi: %w", err)
	}

	c := &Contract{address: common.HexToAddress(address), abi: parsed}
	if _, ok := parsed.Methods[methodStore]; !ok {
		return nil, fmt.Errorf("contract abi has no %s entry point", methodStore)
	}
	_, c.hasGetter = parsed.Methods[methodGet]
	_, c.hasVerify = parsed.Methods[methodVerify]
	if !c.hasGetter && !c.hasVerify {
		return nil, fmt.Errorf("contract abi needs %s or %s", methodGet, methodVerify)
	}
	return c, nil
}

func (c *Contract) Address() common.Address { return c.address }

func (c *Contract) packStore(name string, d types.Digest) ([]byte, error) {
	return c.abi.Pack(methodStore, name, [32]byte(d))
}

func (c *Contract) packGet(name string) ([]byte, error) {
	return c.abi.Pack(methodGet, name)
}

func (c *Contract) packVerify(name string, d types.Digest) ([]byte, error) {
	return c.abi.Pack(methodVerify, name, [32]byte(d))
}

func (c *Contract) unpackGet(out []byte) (types.Digest, error) {
	vals, err := c.abi.Unpack(methodGet, out)
	if err != nil {
		return types.Digest{}, fmt.Errorf("decode %s result: %w", methodGet, err)
	}
	if len(vals) != 1 {
		return types.Digest{}, fmt.Errorf("decode %s result: got %d values", methodGet, len(vals))
	}
	raw, ok := vals[0].([32]byte)
	if !ok {
		return types.Digest{}, fmt.Errorf("decode %s result: unexpected type %T", methodGet, vals[0])
	}
	return types.Digest(raw), nil
}

func (c *Contract) unpackVerify(out []byte) (bool, error) {
	vals, err := c.abi.Unpack(methodVerify, out)
	if err != nil {
		return false, fmt.Errorf("decode %s result: %w", methodVerify, err)
	}
	if len(vals) != 1 {
		return false, fmt.Errorf("decode %s result: got %d values", methodVerify, len(vals))
	}
	ok, isBool := vals[0].(bool)
	if !isBool {
		return false, fmt.Errorf("decode %s result: unexpected type %T", methodVerify, vals[0])
	}
	return ok, nil
}
