package service

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"ledgerseal/pkg/attest"
	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/rpc"
	"ledgerseal/pkg/types"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// maxNameLen 与 rdb 账本的 varchar(255) 一致
const maxNameLen = 255

// AttestService 把 Orchestrator 暴露为 gRPC 服务
type AttestService struct {
	orch   *attest.Orchestrator
	lookup ledger.ReceiptLookup // 账本不支持时为 nil
	logger *slog.Logger
}

func NewAttestService(orch *attest.Orchestrator, lookup ledger.ReceiptLookup, logger *slog.Logger) *AttestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttestService{orch: orch, lookup: lookup, logger: logger}
}

var _ rpc.AttestServer = (*AttestService)(nil)

func validateName(name string) error {
	switch {
	case name == "":
		return status.Error(codes.InvalidArgument, "name: value is required")
	case len(name) > maxNameLen:
		return status.Errorf(codes.InvalidArgument, "name: must be at most %d bytes", maxNameLen)
	case !utf8.ValidString(name):
		return status.Error(codes.InvalidArgument, "name: must be valid UTF-8")
	}
	return nil
}

// Upload 处理上传请求
// 结论 (包括失败类) 放在响应里；gRPC 错误只用于参数错误和服务端故障
func (s *AttestService) Upload(ctx context.Context, req *rpc.UploadRequest) (*rpc.UploadResponse, error) {
	// A. 校验
	if err := validateName(req.Name); err != nil {
		return nil, err
	}

	// B. 编排
	res, err := s.orch.Seal(ctx, req.Name, req.Data)
	if res == nil {
		return nil, status.Errorf(codes.Internal, "upload failed: %v", err)
	}

	// C. Domain -> DTO
	resp := &rpc.UploadResponse{
		Invocation: res.Invocation,
		Name:       res.Name,
		Digest:     res.Digest.Hex(),
		Address:    res.Address.String(),
		TxID:       res.TxID.String(),
		Outcome:    string(res.Outcome),
	}
	if res.StoreErr != nil {
		resp.Warning = res.StoreErr.Error()
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

// Verify 处理校验请求
func (s *AttestService) Verify(ctx context.Context, req *rpc.VerifyRequest) (*rpc.VerifyResponse, error) {
	if err := validateName(req.Name); err != nil {
		return nil, err
	}

	res, err := s.orch.CheckStored(ctx, req.Name, req.Data, types.ContentAddress(req.Address))
	if res == nil {
		return nil, status.Errorf(codes.Internal, "verify failed: %v", err)
	}

	resp := &rpc.VerifyResponse{
		Invocation: res.Invocation,
		Name:       res.Name,
		Digest:     res.Digest.Hex(),
		Outcome:    string(res.Outcome),
		Address:    res.Address.String(),
	}
	if !res.Recorded.IsZero() {
		resp.Recorded = res.Recorded.Hex()
	}
	if res.StoreErr != nil {
		resp.Warning = res.StoreErr.Error()
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

// Resolve 查询之前 UNKNOWN 的交易
func (s *AttestService) Resolve(ctx context.Context, req *rpc.ResolveRequest) (*rpc.ResolveResponse, error) {
	if s.lookup == nil {
		return nil, status.Error(codes.Unimplemented, "ledger backend does not support receipt lookup")
	}
	if req.TxID == "" {
		return nil, status.Error(codes.InvalidArgument, "tx_id: value is required")
	}

	outcome, r, err := attest.Resolve(ctx, s.lookup, types.TxID(req.TxID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, status.Errorf(codes.DeadlineExceeded, "lookup %s: %v", req.TxID, err)
		}
		return nil, status.Errorf(codes.Unavailable, "lookup %s: %v", req.TxID, err)
	}

	resp := &rpc.ResolveResponse{TxID: req.TxID, Outcome: string(outcome)}
	if r != nil {
		resp.BlockNumber = r.BlockNumber
	}
	s.logger.Info("resolved transaction", "tx", req.TxID, "outcome", outcome)
	return resp, nil
}
