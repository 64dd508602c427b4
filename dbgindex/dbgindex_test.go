package dbgindex

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/gaedge/bnt"
	"github.com/mudesheng/gaedge/comm"
	"github.com/mudesheng/gaedge/kmer"
)

func writeFastq(t *testing.T, seqs ...string) string {
	t.Helper()
	var sb strings.Builder
	for i, s := range seqs {
		fmt.Fprintf(&sb, "@read%d\n%s\n+\n%s\n", i, s, strings.Repeat("I", len(s)))
	}
	fn := filepath.Join(t.TempDir(), "reads.fq")
	require.NoError(t, os.WriteFile(fn, []byte(sb.String()), 0644))
	return fn
}

func randSeq(r *rand.Rand, n int) string {
	seq := make([]byte, n)
	for i := range seq {
		seq[i] = bnt.Bnt2Base[r.Intn(bnt.BaseTypeNum)]
	}
	return string(seq)
}

func buildAll(t *testing.T, size int, fn string, opt Options) []*NodeMap {
	t.Helper()
	nms := make([]*NodeMap, size)
	var mu sync.Mutex
	err := comm.Run(size, func(r *comm.Rank) error {
		nm, err := Build(r, fn, opt)
		if err != nil {
			return err
		}
		mu.Lock()
		nms[r.ID()] = nm
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return nms
}

type node struct {
	mask  kmer.EdgeMask
	count uint32
}

func merge(nms []*NodeMap) map[kmer.Kmer]node {
	all := make(map[kmer.Kmer]node)
	for _, nm := range nms {
		nm.Range(func(k kmer.Kmer, m kmer.EdgeMask) bool {
			_, c, _ := nm.Get(k)
			all[k] = node{m, c}
			return true
		})
	}
	return all
}

func TestBuildTwoWindows(t *testing.T) {
	seq := randSeq(rand.New(rand.NewSource(1)), 32)
	fn := writeFastq(t, seq)
	nm := buildAll(t, 1, fn, DefaultOptions())[0]
	require.Equal(t, 2, nm.Len())

	spec := nm.Spec()
	w1, _ := spec.Encode([]byte(seq[:31]))
	w2, _ := spec.Encode([]byte(seq[1:]))

	m1, c1, ok := nm.Get(w1)
	require.True(t, ok)
	assert.Equal(t, uint32(1), c1)
	assert.Equal(t, 0, m1.InCount())
	require.Equal(t, 1, m1.OutCount())
	assert.True(t, m1.HasOut(bnt.Base2Bnt[seq[31]]))

	m2, _, ok := nm.Get(w2)
	require.True(t, ok)
	assert.Equal(t, 0, m2.OutCount())
	assert.True(t, m2.HasIn(bnt.Base2Bnt[seq[0]]))

	// every stored key is canonical
	nm.Range(func(k kmer.Kmer, m kmer.EdgeMask) bool {
		assert.True(t, spec.IsCanonical(k))
		return true
	})
	// in/out split depends on which strand each window is stored on
	st := nm.Stat()
	assert.Equal(t, uint64(2), st.Nodes)
	assert.Equal(t, uint64(2), st.Kmers)
	assert.Equal(t, uint64(2), st.Edges())
}

func TestBuildStrandIndependent(t *testing.T) {
	seq := randSeq(rand.New(rand.NewSource(2)), 60)
	spec := kmer.MustSpec(kmer.DefaultK)
	var rc strings.Builder
	for i := len(seq) - 1; i >= 0; i-- {
		rc.WriteByte(bnt.Bnt2Base[bnt.BntRev[bnt.Base2Bnt[seq[i]]]])
	}
	fwd := merge(buildAll(t, 1, writeFastq(t, seq), DefaultOptions()))
	rev := merge(buildAll(t, 1, writeFastq(t, rc.String()), DefaultOptions()))
	assert.Equal(t, fwd, rev)
	assert.Len(t, fwd, 60-spec.K()+1)
}

func TestBuildPartitioned(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	genome := randSeq(r, 400)
	var reads []string
	for i := 0; i+80 <= len(genome); i += 13 {
		reads = append(reads, genome[i:i+80])
	}
	// a read with an N splits its windows
	reads = append(reads, genome[10:50]+"N"+genome[51:120])
	fn := writeFastq(t, reads...)

	opt := DefaultOptions()
	opt.BatchReads = 2
	single := merge(buildAll(t, 1, fn, opt))
	for _, size := range []int{2, 3, 5} {
		nms := buildAll(t, size, fn, opt)
		total := 0
		for rank, nm := range nms {
			total += nm.Len()
			assert.Equal(t, rank, nm.Rank())
			assert.Equal(t, size, nm.Size())
			nm.Range(func(k kmer.Kmer, m kmer.EdgeMask) bool {
				assert.Equal(t, rank, comm.Owner(k.Word(), size))
				return true
			})
		}
		assert.Equal(t, len(single), total)
		assert.Equal(t, single, merge(nms), "size %d", size)
	}
}

func TestBuildMinKmerFreq(t *testing.T) {
	const k = 11
	r := rand.New(rand.NewSource(4))
	solid := randSeq(r, 20)
	other := byte('A')
	if solid[k] == 'A' {
		other = 'C'
	}
	// solid[:k] continues with solid[k] twice and with other once
	weak := solid[:k] + string(other)
	fn := writeFastq(t, solid, solid, weak)

	opt := DefaultOptions()
	opt.K = k
	opt.MinKmerFreq = 2
	opt.CFSize = 1 << 12
	opt.CFDump = filepath.Join(t.TempDir(), "cf")
	for _, size := range []int{1, 3} {
		all := merge(buildAll(t, size, fn, opt))
		spec := kmer.MustSpec(k)
		assert.Len(t, all, len(solid)-k+1)

		first, _ := spec.Encode([]byte(solid[:k]))
		ck := spec.Canonical(first)
		n, ok := all[ck]
		require.True(t, ok)
		assert.Equal(t, uint32(3), n.count)
		m := n.mask
		if ck != first {
			m = m.ReverseComplement()
		}
		assert.Equal(t, 1, m.OutCount())
		assert.True(t, m.HasOut(bnt.Base2Bnt[solid[k]]))

		weakKmer, _ := spec.Encode([]byte(weak[1:]))
		_, ok = all[spec.Canonical(weakKmer)]
		assert.False(t, ok)
		_, err := os.Stat(fmt.Sprintf("%s.%d.cf.br", opt.CFDump, 0))
		assert.NoError(t, err)
	}
}

func TestBuildOptions(t *testing.T) {
	fn := writeFastq(t, "ACGT")
	tests := []struct {
		name string
		opt  func(o *Options)
		err  error
	}{
		{"even K", func(o *Options) { o.K = 30 }, nil},
		{"wide K", func(o *Options) { o.K = 33 }, kmer.ErrKmerWidth},
		{"freq", func(o *Options) { o.MinKmerFreq = 8 }, ErrMinKmerFreq},
		{"freq zero", func(o *Options) { o.MinKmerFreq = 0 }, ErrMinKmerFreq},
		{"batch", func(o *Options) { o.BatchReads = 0 }, nil},
	}
	for _, tt := range tests {
		opt := DefaultOptions()
		tt.opt(&opt)
		err := comm.Run(2, func(r *comm.Rank) error {
			_, err := Build(r, fn, opt)
			return err
		})
		require.Error(t, err, tt.name)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, tt.name)
		}
	}
}

func TestBuildMissingFile(t *testing.T) {
	err := comm.Run(3, func(r *comm.Rank) error {
		fn := filepath.Join(os.TempDir(), "no-such-dir-gaedge", "reads.fq")
		_, err := Build(r, fn, DefaultOptions())
		return err
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildShortReads(t *testing.T) {
	nm := buildAll(t, 1, writeFastq(t, "ACGTACGT", "NNNN"), DefaultOptions())[0]
	assert.Equal(t, 0, nm.Len())
}
