// Package cuckoofilter is a counting cuckoo filter over packed k-mer words.
// A filter is owned by a single goroutine, it is not safe for concurrent use.
package cuckoofilter

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log"
	"math/bits"
	"math/rand"
	"os"

	"github.com/cespare/xxhash"
	"github.com/google/brotli/go/cbrotli"
)

const (
	// NumFpBits number bits for Fingerprint
	NumFpBits = 13
	// NumCBits number bits for freq Count, sizeof(uint16)*8 - NumFpBits
	NumCBits = 3
	MaxC     = (1 << NumCBits) - 1
	CMask    = MaxC
	FpMask   = (1 << NumFpBits) - 1
)

const BucketSize = 4
const KMaxCount = 500

// Bucket item layout fingerprint|count [NumFpBits:NumCBits], zero is empty
type Bucket [BucketSize]uint16

type CuckooFilter struct {
	Hash      []Bucket
	Count     uint64 // number of distinct fingerprints stored
	BucketPow uint
	rnd       *rand.Rand
}

func upperpower2(x uint64) uint64 {
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++

	return x
}

// MakeCuckooFilter is for construct Cuckoo Filter
func MakeCuckooFilter(maxNumKeys uint64) (cf CuckooFilter) {
	numBuckets := upperpower2(maxNumKeys) / BucketSize
	if numBuckets < 1 {
		numBuckets = 1
	}
	cf.Hash = make([]Bucket, numBuckets)
	cf.BucketPow = uint(bits.TrailingZeros64(numBuckets))
	cf.rnd = rand.New(rand.NewSource(int64(numBuckets)))
	return cf
}

func combineFpC(fp uint16, count uint16) uint16 {
	if count > MaxC {
		panic("count bigger than CFItem allowed")
	}
	return (fp << NumCBits) | count
}

func GetCount(fc uint16) uint16 {
	return fc & CMask
}

func GetFinger(fc uint16) uint16 {
	return fc >> NumCBits
}

func (cf *CuckooFilter) mask() uint64 {
	return uint64(len(cf.Hash)) - 1
}

func (cf *CuckooFilter) getIndexAndFingerprint(word uint64) (uint64, uint16) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], word)
	hash := xxhash.Sum64(b[:])
	// fingerprint zero marks an empty slot
	fp := uint16(hash & FpMask)
	if fp == 0 {
		fp = 1
	}
	return (hash >> NumFpBits) & cf.mask(), fp
}

func (cf *CuckooFilter) getAltIndex(fp uint16, i uint64) uint64 {
	return (i ^ (uint64(fp) * 0x5bd1e995)) & cf.mask()
}

func (b *Bucket) getFingerprintIndex(fp uint16) int {
	for i, tfc := range b {
		if tfc != 0 && GetFinger(tfc) == fp {
			return i
		}
	}
	return -1
}

func (b *Bucket) insert(fc uint16) bool {
	for i, tfc := range b {
		if tfc == 0 {
			b[i] = fc
			return true
		}
	}
	return false
}

func (cf *CuckooFilter) reinsert(fc uint16, i uint64) bool {
	for k := 0; k < KMaxCount; k++ {
		j := cf.rnd.Intn(BucketSize)
		fc, cf.Hash[i][j] = cf.Hash[i][j], fc
		// look in the alternate location for that random element
		i = cf.getAltIndex(GetFinger(fc), i)
		if cf.Hash[i].insert(fc) {
			return true
		}
	}
	return false
}

// Insert add one occurrence of word, return the count before adding and false
// if the filter is too full to store a new fingerprint. Counts saturate at MaxC.
func (cf *CuckooFilter) Insert(word uint64) (oldCount int, succ bool) {
	i1, fp := cf.getIndexAndFingerprint(word)
	i2 := cf.getAltIndex(fp, i1)
	for _, i := range [2]uint64{i1, i2} {
		if j := cf.Hash[i].getFingerprintIndex(fp); j >= 0 {
			c := GetCount(cf.Hash[i][j])
			if c < MaxC {
				cf.Hash[i][j] = combineFpC(fp, c+1)
			}
			return int(c), true
		}
	}
	fc := combineFpC(fp, 1)
	if cf.Hash[i1].insert(fc) || cf.Hash[i2].insert(fc) {
		cf.Count++
		return 0, true
	}
	i := i1
	if cf.rnd.Intn(2) == 1 {
		i = i2
	}
	if cf.reinsert(fc, i) {
		cf.Count++
		return 0, true
	}
	return 0, false
}

// GetCountAllowZero return zero if word not found in the CuckooFilter
func (cf *CuckooFilter) GetCountAllowZero(word uint64) uint16 {
	i1, fp := cf.getIndexAndFingerprint(word)
	if j := cf.Hash[i1].getFingerprintIndex(fp); j >= 0 {
		return GetCount(cf.Hash[i1][j])
	}
	i2 := cf.getAltIndex(fp, i1)
	if j := cf.Hash[i2].getFingerprintIndex(fp); j >= 0 {
		return GetCount(cf.Hash[i2][j])
	}
	return 0
}

func (cf *CuckooFilter) Lookup(word uint64) bool {
	return cf.GetCountAllowZero(word) > 0
}

// GetStat return the histogram of counts and the load factor
func (cf *CuckooFilter) GetStat() (ca [MaxC + 1]int, load float64) {
	var total int
	for _, b := range cf.Hash {
		for _, e := range b {
			ca[GetCount(e)]++
			if e != 0 {
				total++
			}
		}
	}
	load = float64(total) / float64(len(cf.Hash)*BucketSize)
	log.Printf("[GetStat] count statisticas : %v, cuckoofilter buckets: %d, items: %d, load: %f\n", ca, len(cf.Hash), total, load)
	return ca, load
}

// WriteTo dump the filter to fn with gob encoding compressed by brotli.
func (cf *CuckooFilter) WriteTo(fn string) error {
	fp, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer fp.Close()

	brfp := cbrotli.NewWriter(fp, cbrotli.WriterOptions{Quality: 1})
	buffp := bufio.NewWriterSize(brfp, 1<<20)
	if err := gob.NewEncoder(buffp).Encode(cf); err != nil {
		brfp.Close()
		return fmt.Errorf("[WriteTo] encode file: %s err: %w", fn, err)
	}
	if err := buffp.Flush(); err != nil {
		brfp.Close()
		return fmt.Errorf("[WriteTo] failed to flush file: %s, err: %w", fn, err)
	}
	if err := brfp.Close(); err != nil {
		return fmt.Errorf("[WriteTo] failed to close file: %s, err: %w", fn, err)
	}
	return fp.Close()
}

// ReadCuckooFilter load a filter written by WriteTo.
func ReadCuckooFilter(fn string) (cf CuckooFilter, err error) {
	fp, err := os.Open(fn)
	if err != nil {
		return cf, err
	}
	defer fp.Close()
	brfp := cbrotli.NewReader(fp)
	defer brfp.Close()
	if err = gob.NewDecoder(bufio.NewReaderSize(brfp, 1<<20)).Decode(&cf); err != nil {
		return cf, fmt.Errorf("[ReadCuckooFilter] decode file: %s err: %w", fn, err)
	}
	if len(cf.Hash) == 0 || len(cf.Hash)&(len(cf.Hash)-1) != 0 {
		return cf, fmt.Errorf("[ReadCuckooFilter] file: %s bucket number: %d must power of 2", fn, len(cf.Hash))
	}
	cf.rnd = rand.New(rand.NewSource(int64(len(cf.Hash))))
	return cf, nil
}
