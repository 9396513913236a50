//go:build !(mips || mipsle || mips64 || mips64le || ppc64 || ppc64le)

package spidev

// asm-generic layout: 14 size bits, write direction 1.
const (
	iocSizeBits = 14
	iocWrite    = 1
)
