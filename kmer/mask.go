package kmer

import (
	"math/bits"
	"strings"

	"github.com/mudesheng/gaedge/bnt"
)

// EdgeMask records which single base extensions of a k-mer exist:
// bits 0~3 incoming (base prepended), bits 4~7 outgoing (base appended).
type EdgeMask uint8

const outShift = bnt.BaseTypeNum

func (m EdgeMask) HasIn(b byte) bool {
	return m&(1<<b) != 0
}

func (m EdgeMask) HasOut(b byte) bool {
	return m&(1<<(b+outShift)) != 0
}

func (m *EdgeMask) SetIn(b byte) {
	*m |= 1 << b
}

func (m *EdgeMask) SetOut(b byte) {
	*m |= 1 << (b + outShift)
}

func (m *EdgeMask) ResetIn(b byte) {
	*m &^= 1 << b
}

func (m *EdgeMask) ResetOut(b byte) {
	*m &^= 1 << (b + outShift)
}

// InCount number of incoming extensions
func (m EdgeMask) InCount() int {
	return bits.OnesCount8(uint8(m) & 0x0F)
}

// OutCount number of outgoing extensions
func (m EdgeMask) OutCount() int {
	return bits.OnesCount8(uint8(m) >> outShift)
}

// ReverseComplement return the mask as seen from the reverse complement k-mer:
// outgoing b becomes incoming BntRev[b] and the other way round.
func (m EdgeMask) ReverseComplement() (rm EdgeMask) {
	for b := byte(0); b < bnt.BaseTypeNum; b++ {
		if m.HasOut(b) {
			rm.SetIn(bnt.BntRev[b])
		}
		if m.HasIn(b) {
			rm.SetOut(bnt.BntRev[b])
		}
	}
	return rm
}

func (m EdgeMask) String() string {
	var sb strings.Builder
	for b := byte(0); b < bnt.BaseTypeNum; b++ {
		if m.HasIn(b) {
			sb.WriteByte(bnt.Bnt2Base[b])
		} else {
			sb.WriteByte('-')
		}
	}
	sb.WriteByte('|')
	for b := byte(0); b < bnt.BaseTypeNum; b++ {
		if m.HasOut(b) {
			sb.WriteByte(bnt.Bnt2Base[b])
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}
