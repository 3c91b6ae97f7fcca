package client

import (
	"context"
	"net"
	"testing"

	"ledgerseal/pkg/attest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// newClosedClient 返回一个永远连不上的客户端
func newClosedClient(t *testing.T) *Client {
	t.Helper()
	lis := bufconn.Listen(1024)
	require.NoError(t, lis.Close())

	c, err := New("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestUpload_ServerUnreachable(t *testing.T) {
	c := newClosedClient(t)

	res, err := c.Upload(context.Background(), "a.bin", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, attest.OutcomeLedgerUnavailable, res.Outcome, "nothing left the client, the result is definite")
	assert.Equal(t, 8, attest.ExitCode(err))
	assert.True(t, res.TxID.IsZero())
}

func TestVerify_ServerUnreachable(t *testing.T) {
	c := newClosedClient(t)

	res, err := c.Verify(context.Background(), "a.bin", []byte("x"), "")
	require.Error(t, err)
	assert.Equal(t, attest.OutcomeLedgerUnavailable, res.Outcome)
}
