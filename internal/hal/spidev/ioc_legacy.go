//go:build mips || mipsle || mips64 || mips64le || ppc64 || ppc64le

package spidev

// mips and powerpc keep 13 size bits and encode write as 4.
const (
	iocSizeBits = 13
	iocWrite    = 4
)
