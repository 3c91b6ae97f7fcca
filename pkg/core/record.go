package core

import (
	"ledgerseal/pkg/types"
)

// AttestationRecord 是账本上 (name -> digest) 绑定的投影
type AttestationRecord struct {
	Name   string       `cbor:"1,keyasint"`
	Digest types.Digest `cbor:"2,keyasint"`
	Writer string       `cbor:"3,keyasint"` // 写入者账户 (0x 地址)
	TxID   types.TxID   `cbor:"4,keyasint"`
}

// BindingPayload 是一笔写交易的签名内容
// 字段顺序由 keyasint 固定，保证 Canonical 编码后的字节稳定
type BindingPayload struct {
	Name      string       `cbor:"1,keyasint"`
	Digest    types.Digest `cbor:"2,keyasint"`
	Writer    string       `cbor:"3,keyasint"`
	Nonce     uint64       `cbor:"4,keyasint"`
	Timestamp int64        `cbor:"5,keyasint"`
}

// SigningHash 返回签名所用的 32 字节摘要
func (p BindingPayload) SigningHash() (types.Digest, error) {
	h, _, err := CalculateHash(p)
	return h, err
}
