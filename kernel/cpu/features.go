package cpu

type cpuidRegister uint8

const (
	regEAX cpuidRegister = iota
	regEBX
	regECX
	regEDX
)

// Feature identifies a CPU capability bit reported by the CPUID instruction.
type Feature struct {
	leaf uint32
	reg  cpuidRegister
	bit  uint8
}

var (
	// FeaturePAE indicates support for physical address extensions.
	FeaturePAE = Feature{leaf: 1, reg: regEDX, bit: 6}

	// FeatureMSR indicates support for the RDMSR and WRMSR instructions.
	FeatureMSR = Feature{leaf: 1, reg: regEDX, bit: 5}

	// FeatureAPIC indicates the presence of an on-chip local APIC.
	FeatureAPIC = Feature{leaf: 1, reg: regEDX, bit: 9}

	// FeatureMTRR indicates support for memory type range registers.
	FeatureMTRR = Feature{leaf: 1, reg: regEDX, bit: 12}

	// FeaturePGE indicates support for global pages.
	FeaturePGE = Feature{leaf: 1, reg: regEDX, bit: 13}

	// FeatureNX indicates support for the no-execute page flag.
	FeatureNX = Feature{leaf: 0x80000001, reg: regEDX, bit: 20}

	// FeatureHugePages1G indicates support for 1GiB pages.
	FeatureHugePages1G = Feature{leaf: 0x80000001, reg: regEDX, bit: 26}
)

// HasFeature returns true if the CPU reports feature f. Features living in a
// CPUID leaf beyond the highest leaf supported by the CPU are reported as
// missing.
func HasFeature(f Feature) bool {
	maxLeaf, _, _, _ := cpuidFn(f.leaf & 0x80000000)
	if maxLeaf < f.leaf {
		return false
	}

	var value uint32
	eax, ebx, ecx, edx := cpuidFn(f.leaf)
	switch f.reg {
	case regEAX:
		value = eax
	case regEBX:
		value = ebx
	case regECX:
		value = ecx
	default:
		value = edx
	}

	return value&(1<<f.bit) != 0
}
