package bnt

// Bnt is the 2-bit code of a nucleotide base: A=0, C=1, G=2, T=3.
const (
	NumBitsInBase   = 2
	BaseTypeNum     = 4
	BaseMask        = (1 << NumBitsInBase) - 1
	NumBaseInUint64 = 64 / NumBitsInBase
	// Invalid marks letters that are not one of ACGT (N, IUPAC codes, gaps).
	Invalid = 0xFF
)

// Bnt2Base convert code to upper case letter
var Bnt2Base = [BaseTypeNum]byte{'A', 'C', 'G', 'T'}

// BntRev complement base code
var BntRev = [BaseTypeNum]byte{3, 2, 1, 0}

// Base2Bnt convert letter to code, either case, Invalid for others
var Base2Bnt [256]byte

func init() {
	for i := range Base2Bnt {
		Base2Bnt[i] = Invalid
	}
	for i, c := range Bnt2Base {
		Base2Bnt[c] = byte(i)
		Base2Bnt[c+('a'-'A')] = byte(i)
	}
}
