package gf

import "github.com/klauspost/cpuid/v2"

// Options controls which unroll width the bulk primitives use. Mirrors
// the CPU-feature-gated dispatch in the reedsolomon package this kernel
// is grounded on (options.go's useAVX2/useSSSE3/useSSE2 flags), adapted
// to pick a Go loop's chunk size rather than an assembly routine, since
// no platform assembly is shipped by this module (see DESIGN.md).
type Options struct {
	wide   bool // 64-byte unrolled loop (AVX2-class hardware)
	narrow bool // 16-byte unrolled loop (SSSE3/NEON-class hardware)
}

// DefaultOptions detects the running CPU's capabilities once and returns
// the Options a bulk call should use absent an explicit override.
func DefaultOptions() Options {
	return Options{
		wide:   cpuid.CPU.Supports(cpuid.AVX2),
		narrow: cpuid.CPU.Supports(cpuid.SSSE3) || cpuid.CPU.Supports(cpuid.ASIMD),
	}
}

var defaultOptions = DefaultOptions()
