package credentials

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"ledgerseal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNoCredential = errors.New("signing key not configured")

// Signer 持有进程级的账户私钥
// 启动时加载一次，之后只读；verify 流程不需要它
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// LoadSigner 从十六进制私钥构造 Signer (允许 0x 前缀)
func LoadSigner(hexKey string) (*Signer, error) {
	raw := strings.TrimSpace(hexKey)
	if raw == "" {
		return nil, ErrNoCredential
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		// 不要把私钥内容拼进错误信息
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return NewSigner(key), nil
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address 返回账户身份 (0x 地址)
func (s *Signer) Address() common.Address { return s.address }

// PrivateKey 供交易签名使用
func (s *Signer) PrivateKey() *ecdsa.PrivateKey { return s.key }

// SignDigest 对 32 字节摘要签名，返回 65 字节 [R || S || V]
func (s *Signer) SignDigest(d types.Digest) ([]byte, error) {
	return crypto.Sign(d[:], s.key)
}

// RecoverAddress 从签名恢复签名者地址
func RecoverAddress(d types.Digest, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(d[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
