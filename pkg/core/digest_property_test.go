package core

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDigestDeterminism 同样的字节两次计算必须得到同样的 Digest
func TestDigestDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("digest(B) == digest(B)", prop.ForAll(
		func(data []byte) bool {
			// 拷贝一份，排除共享底层数组带来的假阳性
			clone := append([]byte(nil), data...)
			return ComputeDigest(data) == ComputeDigest(clone)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

// TestDigestSensitivity 任意单字节变异都应改变 Digest
func TestDigestSensitivity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("single-byte mutation changes the digest", prop.ForAll(
		func(data []byte, pos int, flip uint8) bool {
			mutated := append([]byte(nil), data...)
			i := pos % len(mutated)
			mutated[i] ^= flip
			return ComputeDigest(data) != ComputeDigest(mutated)
		},
		gen.SliceOfN(64, gen.UInt8()).SuchThat(func(v []byte) bool { return len(v) > 0 }),
		gen.IntRange(0, 1<<16),
		gen.UInt8Range(1, 255), // 0 不是变异
	))

	properties.Property("appending a byte changes the digest", prop.ForAll(
		func(data []byte, extra uint8) bool {
			longer := append(append([]byte(nil), data...), extra)
			return ComputeDigest(data) != ComputeDigest(longer)
		},
		gen.SliceOf(gen.UInt8()),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
