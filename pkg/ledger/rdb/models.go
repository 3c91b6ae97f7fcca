package rdb

import (
	"time"

	"gorm.io/datatypes"
)

// Binding 是每个名字当前生效的 Digest (账本的“世界状态”)
type Binding struct {
	// Name 是主键，例如 "hello.txt"
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// Digest 小写十六进制
	Digest string `gorm:"type:char(64);not null"`

	Writer string `gorm:"type:varchar(42);index"`

	// TxHash 指向最近一次生效的写交易
	TxHash string `gorm:"type:char(66);not null"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次覆盖时 +1，防止并发写入互相覆盖
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

// TxRecord 是只追加的交易日志，每条都链接到前一条的哈希
// 不存在 UPDATE / DELETE 路径
type TxRecord struct {
	Sequence uint64 `gorm:"primaryKey;autoIncrement:false"`

	TxHash string `gorm:"uniqueIndex;type:char(66);not null"`

	Name   string `gorm:"index;type:varchar(255);not null"`
	Digest string `gorm:"type:char(64);not null"`
	Writer string `gorm:"index;type:varchar(42);not null"`
	Nonce  uint64
	// Timestamp 是签名载荷里的时间 (Unix 秒)
	Timestamp int64

	// Signature 65 字节 secp256k1 签名的十六进制
	Signature string `gorm:"type:varchar(130);not null"`

	// PrevHash 前一条交易的 TxHash，第一条为 "genesis"
	PrevHash string `gorm:"type:varchar(66);not null"`

	// Meta: 写入时的策略、版本等附加信息
	Meta datatypes.JSON

	CreatedAt time.Time
}

// TableName 强制指定表名
func (TxRecord) TableName() string {
	return "ledger_transactions"
}
