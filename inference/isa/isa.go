// Package isa tracks the instruction-set dispatch ceiling for numeric kernels.
//
// The ceiling is taken from the ONEDNN_MAX_CPU_ISA environment variable, which oneDNN based
// runtimes read when they are first initialized. It is read once per process and cannot be
// changed afterwards; comparing two ceilings requires a second process (see Environ).
package isa

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

// EnvVar is the environment variable selecting the dispatch ceiling.
const EnvVar = "ONEDNN_MAX_CPU_ISA"

// Tier is an instruction-set tier. Higher tiers include every lower tier.
type Tier int

// Tiers in ascending order.
const (
	TierScalar Tier = iota
	TierSSE41
	TierAVX
	TierAVX2
	TierAVX512Core
	TierAVX512CoreVNNI
	TierAVX512CoreBF16
	TierAVX512CoreAMX
	// TierAll means no ceiling.
	TierAll
)

var tierNames = map[Tier]string{
	TierScalar:         "SCALAR",
	TierSSE41:          "SSE41",
	TierAVX:            "AVX",
	TierAVX2:           "AVX2",
	TierAVX512Core:     "AVX512_CORE",
	TierAVX512CoreVNNI: "AVX512_CORE_VNNI",
	TierAVX512CoreBF16: "AVX512_CORE_BF16",
	TierAVX512CoreAMX:  "AVX512_CORE_AMX",
	TierAll:            "ALL",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// ParseTier resolves a tier name as accepted by ONEDNN_MAX_CPU_ISA.
//
// Arguments:
//   - s: The tier name, case-insensitive. "DEFAULT" and the empty string mean no ceiling.
//
// Returns:
//   - Tier: The parsed tier.
//   - error: An error if the name is not a known tier.
func ParseTier(s string) (Tier, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "", "DEFAULT", "ALL":
		return TierAll, nil
	case "AVX512_CORE_AMX_FP16":
		return TierAVX512CoreAMX, nil
	case "AVX2_VNNI", "AVX2_VNNI_2":
		return TierAVX2, nil
	}
	for tier, tierName := range tierNames {
		if tierName == name {
			return tier, nil
		}
	}
	return TierAll, errors.Errorf("unknown instruction set tier %q", s)
}

// SupportsVNNI reports whether int8 dot-product instructions are available at this tier.
func (t Tier) SupportsVNNI() bool { return t >= TierAVX512CoreVNNI }

// SupportsBF16 reports whether native bfloat16 instructions are available at this tier.
func (t Tier) SupportsBF16() bool { return t >= TierAVX512CoreBF16 }

// SupportsAMX reports whether the advanced matrix extensions are available at this tier.
func (t Tier) SupportsAMX() bool { return t >= TierAVX512CoreAMX }

var (
	ceilingOnce sync.Once
	ceiling     Tier
)

// Ceiling returns the process-wide dispatch ceiling. The environment is consulted on the first
// call only; later changes to the variable have no effect.
func Ceiling() Tier {
	ceilingOnce.Do(func() {
		raw := os.Getenv(EnvVar)
		tier, err := ParseTier(raw)
		if err != nil {
			slog.Warn("ignoring dispatch ceiling", "var", EnvVar, "value", raw, "error", err)
		}
		ceiling = tier
	})
	return ceiling
}

// Features is the subset of CPU features that decide the tier.
type Features struct {
	SSE41      bool
	AVX        bool
	AVX2       bool
	FMA        bool
	AVX512F    bool
	AVX512BW   bool
	AVX512VL   bool
	AVX512DQ   bool
	AVX512VNNI bool
	AVX512BF16 bool
	AMXBF16    bool
}

// HostFeatures reads the host CPU features.
func HostFeatures() Features {
	return Features{
		SSE41:      cpu.X86.HasSSE41,
		AVX:        cpu.X86.HasAVX,
		AVX2:       cpu.X86.HasAVX2,
		FMA:        cpu.X86.HasFMA,
		AVX512F:    cpu.X86.HasAVX512F,
		AVX512BW:   cpu.X86.HasAVX512BW,
		AVX512VL:   cpu.X86.HasAVX512VL,
		AVX512DQ:   cpu.X86.HasAVX512DQ,
		AVX512VNNI: cpu.X86.HasAVX512VNNI,
		AVX512BF16: cpu.X86.HasAVX512BF16,
		AMXBF16:    cpu.X86.HasAMXBF16,
	}
}

// Tier returns the highest tier covered by the feature set.
func (f Features) Tier() Tier {
	// AVX512_CORE needs F, BW, VL and DQ together.
	core := f.AVX512F && f.AVX512BW && f.AVX512VL && f.AVX512DQ
	switch {
	case core && f.AVX512VNNI && f.AVX512BF16 && f.AMXBF16:
		return TierAVX512CoreAMX
	case core && f.AVX512VNNI && f.AVX512BF16:
		return TierAVX512CoreBF16
	case core && f.AVX512VNNI:
		return TierAVX512CoreVNNI
	case core:
		return TierAVX512Core
	case f.AVX2 && f.FMA:
		return TierAVX2
	case f.AVX:
		return TierAVX
	case f.SSE41:
		return TierSSE41
	default:
		return TierScalar
	}
}

var (
	detectOnce sync.Once
	detected   Tier
)

// Detect returns the highest tier supported by the host CPU.
func Detect() Tier {
	detectOnce.Do(func() {
		detected = HostFeatures().Tier()
	})
	return detected
}

// Effective returns the tier kernels may use: the lower of the ceiling and the host tier.
func Effective() Tier {
	return Clamp(Ceiling(), Detect())
}

// Clamp returns the lower of a ceiling and a detected tier.
func Clamp(ceiling, detected Tier) Tier {
	if ceiling < detected {
		return ceiling
	}
	return detected
}

// Environ returns a copy of the current environment with the dispatch ceiling replaced, for
// launching a child process under a different ceiling.
func Environ(t Tier) []string {
	prefix := EnvVar + "="
	env := make([]string, 0, len(os.Environ())+1)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		env = append(env, kv)
	}
	if t == TierAll {
		return append(env, prefix+"ALL")
	}
	return append(env, prefix+t.String())
}
