package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloHex = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestParseDigest(t *testing.T) {
	d, err := ParseDigest(helloHex)
	require.NoError(t, err)
	assert.Equal(t, helloHex, d.Hex())

	// 0x 前缀与大写十六进制都能解析，解析后按字节比较
	upper, err := ParseDigest("0x2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824")
	require.NoError(t, err)
	assert.True(t, d.Equal(upper))
	assert.Equal(t, helloHex, upper.String(), "展示时统一为小写")
}

func TestParseDigest_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"Too short", helloHex[:62]},
		{"Too long", helloHex + "00"},
		{"Not hex", "zz" + helloHex[2:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDigest(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestDigest_EqualIsExact(t *testing.T) {
	a, err := ParseDigest(helloHex)
	require.NoError(t, err)

	b := a
	b[DigestSize-1] ^= 0x01 // 只改最后一个 bit

	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(a))
}

func TestDigest_ZeroAndBytes(t *testing.T) {
	var zero Digest
	assert.True(t, zero.IsZero())

	d, err := DigestFromBytes(make([]byte, DigestSize))
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = DigestFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)

	// Bytes 返回拷贝，修改它不能影响原值
	h, _ := ParseDigest(helloHex)
	raw := h.Bytes()
	raw[0] = 0xff
	assert.Equal(t, helloHex, h.Hex())
}

func TestTxID_Short(t *testing.T) {
	assert.Equal(t, "0x1234567890", TxID("0x1234567890abcdef").Short())
	assert.Equal(t, "0xabc", TxID("0xabc").Short())
	assert.True(t, TxID("").IsZero())
}
