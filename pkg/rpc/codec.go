package rpc

import (
	"ledgerseal/pkg/core"

	"google.golang.org/grpc/encoding"
)

// CodecName 是 gRPC content-subtype，请求头为 application/grpc+cbor
const CodecName = "cbor"

// Codec 用确定性 CBOR 编码 gRPC 消息，替代 protobuf
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) { return core.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return core.DecodeObject(data, v) }

func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
