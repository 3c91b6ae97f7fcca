package rpc

// UploadRequest 携带完整文件内容；服务端用自己的凭证提交
type UploadRequest struct {
	Name string `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

// UploadResponse 中 Outcome 总是有值；Error 只在失败类结论时填写
type UploadResponse struct {
	Invocation string `cbor:"1,keyasint"`
	Name       string `cbor:"2,keyasint"`
	Digest     string `cbor:"3,keyasint"`
	Address    string `cbor:"4,keyasint,omitempty"`
	TxID       string `cbor:"5,keyasint,omitempty"`
	Outcome    string `cbor:"6,keyasint"`
	Warning    string `cbor:"7,keyasint,omitempty"`
	Error      string `cbor:"8,keyasint,omitempty"`
}

type VerifyRequest struct {
	Name string `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
	// Address 非空时服务端取回存储副本做交叉校验
	Address string `cbor:"3,keyasint,omitempty"`
}

type VerifyResponse struct {
	Invocation string `cbor:"1,keyasint"`
	Name       string `cbor:"2,keyasint"`
	Digest     string `cbor:"3,keyasint"`
	Recorded   string `cbor:"4,keyasint,omitempty"`
	Outcome    string `cbor:"5,keyasint"`
	Error      string `cbor:"6,keyasint,omitempty"`
	Address    string `cbor:"7,keyasint,omitempty"`
	Warning    string `cbor:"8,keyasint,omitempty"`
}

type ResolveRequest struct {
	TxID string `cbor:"1,keyasint"`
}

type ResolveResponse struct {
	TxID        string `cbor:"1,keyasint"`
	Outcome     string `cbor:"2,keyasint"`
	BlockNumber uint64 `cbor:"3,keyasint,omitempty"`
}
