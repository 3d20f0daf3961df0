package isa

import (
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	cases := []struct {
		in   string
		want Tier
	}{
		{"", TierAll},
		{"default", TierAll},
		{"AVX2", TierAVX2},
		{"avx512_core_vnni", TierAVX512CoreVNNI},
		{"AVX512_CORE_BF16", TierAVX512CoreBF16},
		{"AVX512_CORE_AMX", TierAVX512CoreAMX},
		{"AVX512_CORE_AMX_FP16", TierAVX512CoreAMX},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTier(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseTier("AVX1024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"AVX1024"`)
	_, traced := err.(interface{ StackTrace() errors.StackTrace })
	assert.True(t, traced, "parse errors carry a stack trace")
}

func TestTierStringRoundTrip(t *testing.T) {
	for tier := TierSSE41; tier <= TierAll; tier++ {
		parsed, err := ParseTier(tier.String())
		require.NoError(t, err, tier.String())
		assert.Equal(t, tier, parsed)
	}
}

func TestFeaturesTier(t *testing.T) {
	core := Features{SSE41: true, AVX: true, AVX2: true, FMA: true, AVX512F: true, AVX512BW: true, AVX512VL: true, AVX512DQ: true}

	assert.Equal(t, TierScalar, Features{}.Tier())
	assert.Equal(t, TierAVX, Features{SSE41: true, AVX: true}.Tier())
	assert.Equal(t, TierAVX2, Features{AVX: true, AVX2: true, FMA: true}.Tier())
	assert.Equal(t, TierAVX512Core, core.Tier())

	vnni := core
	vnni.AVX512VNNI = true
	assert.Equal(t, TierAVX512CoreVNNI, vnni.Tier())

	bf16 := vnni
	bf16.AVX512BF16 = true
	assert.Equal(t, TierAVX512CoreBF16, bf16.Tier())

	amx := bf16
	amx.AMXBF16 = true
	assert.Equal(t, TierAVX512CoreAMX, amx.Tier())

	// AVX512F alone is not a full AVX512 core.
	assert.Equal(t, TierAVX2, Features{AVX: true, AVX2: true, FMA: true, AVX512F: true}.Tier())
}

func TestClampAndCapabilities(t *testing.T) {
	assert.Equal(t, TierAVX512CoreVNNI, Clamp(TierAVX512CoreVNNI, TierAVX512CoreAMX))
	assert.Equal(t, TierAVX2, Clamp(TierAll, TierAVX2))

	assert.True(t, TierAVX512CoreVNNI.SupportsVNNI())
	assert.False(t, TierAVX512CoreVNNI.SupportsBF16())
	assert.True(t, TierAVX512CoreAMX.SupportsBF16())
	assert.False(t, TierAVX512CoreBF16.SupportsAMX())
}

func TestCeilingIsReadOnce(t *testing.T) {
	first := Ceiling()
	t.Setenv(EnvVar, "SSE41")
	assert.Equal(t, first, Ceiling(), "ceiling must not change after first read")
}

func TestEnviron(t *testing.T) {
	t.Setenv(EnvVar, "AVX2")
	env := Environ(TierAVX512CoreVNNI)

	var found []string
	for _, kv := range env {
		if strings.HasPrefix(kv, EnvVar+"=") {
			found = append(found, kv)
		}
	}
	assert.Equal(t, []string{EnvVar + "=AVX512_CORE_VNNI"}, found)
	assert.Equal(t, "AVX2", os.Getenv(EnvVar), "parent environment is untouched")
}
