package attest

import (
	"context"
	"errors"
	"testing"

	"ledgerseal/pkg/ledger"
	"ledgerseal/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupFunc func(ctx context.Context, txID types.TxID) (*ledger.Receipt, error)

func (f lookupFunc) LookupReceipt(ctx context.Context, txID types.TxID) (*ledger.Receipt, error) {
	return f(ctx, txID)
}

func TestResolve(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name    string
		err     error
		want    Outcome
		wantErr bool
	}{
		{"confirmed", nil, OutcomeSealed, false},
		{"still pending", &ledger.PendingError{TxID: "0x1"}, OutcomeUnknown, false},
		{"reverted", ledger.Rejected("execution", errors.New("reverted")), OutcomeRejected, false},
		{"never seen", ledger.ErrTxNotFound, OutcomeRejected, false},
		{"lookup failed", boom, OutcomeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := lookupFunc(func(ctx context.Context, txID types.TxID) (*ledger.Receipt, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &ledger.Receipt{TxID: txID, BlockNumber: 7}, nil
			})

			got, r, err := Resolve(context.Background(), rl, "0x1")
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == OutcomeSealed {
				require.NotNil(t, r)
				assert.Equal(t, uint64(7), r.BlockNumber)
			}
		})
	}
}
