// Package kmer packs fixed length nucleotide strings into a single uint64
// word, 2 bits per base, first base in the highest used bit pair. Comparing
// two packed words of the same length compares the strings lexicographically.
package kmer

import (
	"errors"
	"fmt"

	"github.com/mudesheng/gaedge/bnt"
)

// DefaultK is the k-mer length used by the edge list generator.
const DefaultK = 31

// a negative width constant does not compile, so DefaultK can never outgrow one word
const _ = uint64(64 - DefaultK*bnt.NumBitsInBase)

var ErrKmerWidth = errors.New("kmer does not fit in a single 64-bit word")

// Kmer is a packed k-mer; its length is carried by the Spec that built it.
type Kmer uint64

// Word return the leading packed word, the whole k-mer for K <= 32
func (k Kmer) Word() uint64 {
	return uint64(k)
}

// Spec fixes the k-mer length for a run. The zero Spec is not usable, build
// one with NewSpec or MustSpec.
type Spec struct {
	k    int
	mask uint64
}

// NewSpec validates k. Even lengths are rejected because a k-mer can then be
// its own reverse complement and has no canonical strand.
func NewSpec(k int) (Spec, error) {
	if k < 1 || k*bnt.NumBitsInBase > 64 {
		return Spec{}, fmt.Errorf("[NewSpec] K:%d must in [1, %d]: %w", k, bnt.NumBaseInUint64, ErrKmerWidth)
	}
	if k%2 != 1 {
		return Spec{}, fmt.Errorf("[NewSpec] K:%d must odd number", k)
	}
	return Spec{k: k, mask: ^uint64(0) >> (64 - uint(k)*bnt.NumBitsInBase)}, nil
}

// MustSpec is NewSpec for constant lengths.
func MustSpec(k int) Spec {
	s, err := NewSpec(k)
	if err != nil {
		panic(err)
	}
	return s
}

// K the k-mer length
func (s Spec) K() int {
	return s.k
}

// Encode pack the letters of seq, len(seq) must equal K
func (s Spec) Encode(seq []byte) (Kmer, bool) {
	if len(seq) != s.k {
		return 0, false
	}
	var w uint64
	for _, c := range seq {
		b := bnt.Base2Bnt[c]
		if b == bnt.Invalid {
			return 0, false
		}
		w <<= bnt.NumBitsInBase
		w |= uint64(b)
	}
	return Kmer(w), true
}

// String unpack k to upper case letters
func (s Spec) String(k Kmer) string {
	seq := make([]byte, s.k)
	w := uint64(k)
	for i := s.k - 1; i >= 0; i-- {
		seq[i] = bnt.Bnt2Base[w&bnt.BaseMask]
		w >>= bnt.NumBitsInBase
	}
	return string(seq)
}

// ReverseComplement complement every base and reverse the base order
func (s Spec) ReverseComplement(k Kmer) Kmer {
	bs := ^uint64(k)
	bs = (bs&0x3333333333333333)<<2 | (bs&0xCCCCCCCCCCCCCCCC)>>2
	bs = (bs&0x0F0F0F0F0F0F0F0F)<<4 | (bs&0xF0F0F0F0F0F0F0F0)>>4
	bs = (bs&0x00FF00FF00FF00FF)<<8 | (bs&0xFF00FF00FF00FF00)>>8
	bs = (bs&0x0000FFFF0000FFFF)<<16 | (bs&0xFFFF0000FFFF0000)>>16
	bs = (bs&0x00000000FFFFFFFF)<<32 | (bs&0xFFFFFFFF00000000)>>32
	bs >>= 64 - uint(s.k)*bnt.NumBitsInBase
	return Kmer(bs)
}

// Canonical return the smaller of k and its reverse complement.
func (s Spec) Canonical(k Kmer) Kmer {
	if rk := s.ReverseComplement(k); rk < k {
		return rk
	}
	return k
}

func (s Spec) IsCanonical(k Kmer) bool {
	return k <= s.ReverseComplement(k)
}

// InNeighbor return b+k[:K-1]
func (s Spec) InNeighbor(k Kmer, b byte) Kmer {
	return Kmer(uint64(b)<<(uint(s.k-1)*bnt.NumBitsInBase) | uint64(k)>>bnt.NumBitsInBase)
}

// OutNeighbor return k[1:]+b
func (s Spec) OutNeighbor(k Kmer, b byte) Kmer {
	return Kmer((uint64(k)<<bnt.NumBitsInBase)&s.mask | uint64(b))
}

// InNeighbors append to dst every k-mer b+k[:K-1] whose incoming bit is set in mask.
func (s Spec) InNeighbors(k Kmer, mask EdgeMask, dst []Kmer) []Kmer {
	for b := byte(0); b < bnt.BaseTypeNum; b++ {
		if mask.HasIn(b) {
			dst = append(dst, s.InNeighbor(k, b))
		}
	}
	return dst
}

// OutNeighbors append to dst every k-mer k[1:]+b whose outgoing bit is set in mask.
func (s Spec) OutNeighbors(k Kmer, mask EdgeMask, dst []Kmer) []Kmer {
	for b := byte(0); b < bnt.BaseTypeNum; b++ {
		if mask.HasOut(b) {
			dst = append(dst, s.OutNeighbor(k, b))
		}
	}
	return dst
}

// Windows call fn for every k-mer of the read seq (letters), in read order.
// Windows never span an invalid letter. in and out are the codes of the bases
// before and after the window in the read, bnt.Invalid at a run boundary.
func (s Spec) Windows(seq []byte, fn func(k Kmer, in, out byte)) {
	var w uint64
	run := 0
	for i, c := range seq {
		b := bnt.Base2Bnt[c]
		if b == bnt.Invalid {
			run = 0
			w = 0
			continue
		}
		w = (w<<bnt.NumBitsInBase | uint64(b)) & s.mask
		run++
		if run < s.k {
			continue
		}
		in, out := byte(bnt.Invalid), byte(bnt.Invalid)
		if run > s.k {
			in = bnt.Base2Bnt[seq[i-s.k]]
		}
		if i+1 < len(seq) {
			out = bnt.Base2Bnt[seq[i+1]]
		}
		fn(Kmer(w), in, out)
	}
}
