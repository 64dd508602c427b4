// Package dbgindex builds a de Bruijn graph node map partitioned across the
// ranks of a comm group. Each rank owns the canonical k-mers that comm.Owner
// assigns to it; a node carries the mask of single base extensions observed
// next to it in the reads.
package dbgindex

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mudesheng/gaedge/bnt"
	"github.com/mudesheng/gaedge/comm"
	"github.com/mudesheng/gaedge/cuckoofilter"
	"github.com/mudesheng/gaedge/kmer"
	"github.com/mudesheng/gaedge/seqio"
)

var ErrMinKmerFreq = fmt.Errorf("MinKmerFreq must in [1, %d]", cuckoofilter.MaxC)

type Options struct {
	K int
	// MinKmerFreq drops k-mers seen fewer times, 1 keeps every k-mer
	MinKmerFreq int
	// BatchReads is the number of owned reads parsed between two exchanges
	BatchReads int
	// CFSize is the number of keys each rank's cuckoo filter is sized for,
	// only used when MinKmerFreq > 1
	CFSize uint64
	// CFDump, if set, is a prefix the counting filters are written to as
	// CFDump.<rank>.cf.br
	CFDump string
}

func DefaultOptions() Options {
	return Options{
		K:           kmer.DefaultK,
		MinKmerFreq: 1,
		BatchReads:  4096,
		CFSize:      1 << 22,
	}
}

type nodeInfo struct {
	Mask  kmer.EdgeMask
	Count uint32
}

// NodeMap is the local partition of the distributed node map. It is not
// modified after Build returns.
type NodeMap struct {
	spec  kmer.Spec
	rank  int
	size  int
	nodes map[kmer.Kmer]nodeInfo
}

// NewNodeMap return an empty partition of rank in a group of size ranks.
func NewNodeMap(spec kmer.Spec, rank, size int) *NodeMap {
	return &NodeMap{spec: spec, rank: rank, size: size, nodes: make(map[kmer.Kmer]nodeInfo)}
}

// Add merge one observation of k with extension mask m; k need not be
// canonical, the mask is flipped along with it.
func (nm *NodeMap) Add(k kmer.Kmer, m kmer.EdgeMask) {
	if rk := nm.spec.ReverseComplement(k); rk < k {
		k, m = rk, m.ReverseComplement()
	}
	ni := nm.nodes[k]
	ni.Mask |= m
	ni.Count++
	nm.nodes[k] = ni
}

func (nm *NodeMap) Spec() kmer.Spec {
	return nm.spec
}

// Rank the rank that owns this partition
func (nm *NodeMap) Rank() int {
	return nm.rank
}

// Size number of ranks the map is partitioned across
func (nm *NodeMap) Size() int {
	return nm.size
}

// Len number of local nodes
func (nm *NodeMap) Len() int {
	return len(nm.nodes)
}

// Range call fn for every local node in map order (unspecified, not stable
// across runs) until fn returns false. The mask is relative to the canonical k-mer.
func (nm *NodeMap) Range(fn func(k kmer.Kmer, m kmer.EdgeMask) bool) {
	for k, ni := range nm.nodes {
		if !fn(k, ni.Mask) {
			return
		}
	}
}

// Get look up the canonical form of k in the local partition.
func (nm *NodeMap) Get(k kmer.Kmer) (m kmer.EdgeMask, count uint32, ok bool) {
	ck := nm.spec.Canonical(k)
	ni, ok := nm.nodes[ck]
	if !ok {
		return 0, 0, false
	}
	if ck != k {
		return ni.Mask.ReverseComplement(), ni.Count, true
	}
	return ni.Mask, ni.Count, true
}

// Stat summary of the local partition. InEdges and OutEdges count mask bits
// relative to the stored canonical k-mer, so how a link splits between them
// depends on strand; only their sum, Edges, is strand independent.
type Stat struct {
	Nodes    uint64
	InEdges  uint64
	OutEdges uint64
	Kmers    uint64 // occurrences
}

// Edges number of edges the partition flattens to
func (st Stat) Edges() uint64 {
	return st.InEdges + st.OutEdges
}

func (nm *NodeMap) Stat() (st Stat) {
	for _, ni := range nm.nodes {
		st.Nodes++
		st.InEdges += uint64(ni.Mask.InCount())
		st.OutEdges += uint64(ni.Mask.OutCount())
		st.Kmers += uint64(ni.Count)
	}
	return st
}

func checkOptions(opt Options) (kmer.Spec, error) {
	spec, err := kmer.NewSpec(opt.K)
	if err != nil {
		return spec, err
	}
	if opt.MinKmerFreq < 1 || opt.MinKmerFreq > cuckoofilter.MaxC {
		return spec, fmt.Errorf("[Build] MinKmerFreq: %d: %w", opt.MinKmerFreq, ErrMinKmerFreq)
	}
	if opt.BatchReads < 1 {
		return spec, errors.New("[Build] BatchReads must >= 1")
	}
	return spec, nil
}

// Build construct the node map of the reads in fileName. It is a collective
// operation: every rank of r's group must call it with the same arguments.
func Build(r *comm.Rank, fileName string, opt Options) (*NodeMap, error) {
	return BuildFiles(r, []string{fileName}, opt)
}

// BuildFiles is Build over the concatenation of several reads files.
func BuildFiles(r *comm.Rank, fns []string, opt Options) (*NodeMap, error) {
	spec, err := checkOptions(opt)
	if err != nil {
		return nil, err
	}
	nm := NewNodeMap(spec, r.ID(), r.Size())

	var cf *cuckoofilter.CuckooFilter
	if opt.MinKmerFreq > 1 {
		t0 := time.Now()
		cf, err = countKmers(r, fns, spec, opt)
		if err != nil {
			return nil, err
		}
		log.Printf("[Build] rank %d count kmer pass took %v, cf.Count:%d\n", r.ID(), time.Since(t0), cf.Count)
		if opt.CFDump != "" {
			fn := fmt.Sprintf("%s.%d.cf.br", opt.CFDump, r.ID())
			if err := cf.WriteTo(fn); err != nil {
				return nil, err
			}
			// every dump is complete once Build moves past the count pass
			if err := comm.Barrier(r); err != nil {
				return nil, err
			}
		}
	}

	t0 := time.Now()
	if err := insertKmers(r, fns, nm, cf, opt); err != nil {
		return nil, err
	}
	log.Printf("[Build] rank %d insert pass took %v, local nodes:%d\n", r.ID(), time.Since(t0), nm.Len())

	if opt.MinKmerFreq > 1 {
		t0 = time.Now()
		cleared, err := pruneMissingNeighbors(r, nm)
		if err != nil {
			return nil, err
		}
		log.Printf("[Build] rank %d prune pass took %v, cleared edges:%d\n", r.ID(), time.Since(t0), cleared)
	}
	return nm, nil
}

type entry struct {
	Kmer kmer.Kmer
	Mask kmer.EdgeMask
}

func countKmers(r *comm.Rank, fns []string, spec kmer.Spec, opt Options) (*cuckoofilter.CuckooFilter, error) {
	cf := cuckoofilter.MakeCuckooFilter(opt.CFSize)
	var full int
	produce := func(rec seqio.Record, send [][]kmer.Kmer) {
		spec.Windows(rec.Seq, func(k kmer.Kmer, in, out byte) {
			k = spec.Canonical(k)
			o := comm.Owner(k.Word(), r.Size())
			send[o] = append(send[o], k)
		})
	}
	consume := func(recv [][]kmer.Kmer) {
		for _, ks := range recv {
			for _, k := range ks {
				if _, ok := cf.Insert(k.Word()); !ok {
					full++
				}
			}
		}
	}
	if err := exchangeRounds(r, fns, opt.BatchReads, produce, consume); err != nil {
		return nil, err
	}
	if full > 0 {
		return nil, fmt.Errorf("[countKmers] rank %d cuckoofilter full, %d kmers not counted, increase CFSize:%d", r.ID(), full, opt.CFSize)
	}
	return &cf, nil
}

func insertKmers(r *comm.Rank, fns []string, nm *NodeMap, cf *cuckoofilter.CuckooFilter, opt Options) error {
	spec := nm.spec
	minFreq := uint16(opt.MinKmerFreq)
	produce := func(rec seqio.Record, send [][]entry) {
		spec.Windows(rec.Seq, func(k kmer.Kmer, in, out byte) {
			var m kmer.EdgeMask
			if in != bnt.Invalid {
				m.SetIn(in)
			}
			if out != bnt.Invalid {
				m.SetOut(out)
			}
			if rk := spec.ReverseComplement(k); rk < k {
				k, m = rk, m.ReverseComplement()
			}
			o := comm.Owner(k.Word(), r.Size())
			send[o] = append(send[o], entry{Kmer: k, Mask: m})
		})
	}
	consume := func(recv [][]entry) {
		for _, es := range recv {
			for _, e := range es {
				if cf != nil && cf.GetCountAllowZero(e.Kmer.Word()) < minFreq {
					continue
				}
				nm.Add(e.Kmer, e.Mask)
			}
		}
	}
	return exchangeRounds(r, fns, opt.BatchReads, produce, consume)
}

// exchangeRounds parse the reads owned by r (record index modulo group size)
// and ship what produce emits to the owning ranks, one Alltoall per batch of
// BatchReads reads. Rounds continue until every rank has reached the end of
// its input.
func exchangeRounds[T any](r *comm.Rank, fns []string, batchReads int, produce func(rec seqio.Record, send [][]T), consume func(recv [][]T)) error {
	send := make([][]T, r.Size())
	round := func(done bool) (bool, error) {
		recv, err := comm.Alltoall(r, send)
		if err != nil {
			return false, err
		}
		consume(recv)
		send = make([][]T, r.Size())
		return comm.AllreduceOr(r, !done)
	}

	idx, owned := 0, 0
	for _, fn := range fns {
		err := seqio.ForEach(fn, func(_ int, rec seqio.Record) error {
			i := idx
			idx++
			if i%r.Size() != r.ID() {
				return nil
			}
			produce(rec, send)
			owned++
			if owned%batchReads == 0 {
				_, err := round(false)
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	for {
		more, err := round(true)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

type query struct {
	Kmer   kmer.Kmer
	Base   byte
	Out    bool
	Source kmer.Kmer
}

// pruneMissingNeighbors clear every mask bit whose extension k-mer is not in
// the map, so a set bit always names an existing node.
func pruneMissingNeighbors(r *comm.Rank, nm *NodeMap) (cleared int, err error) {
	spec := nm.spec
	pending := make([][]query, r.Size())
	send := make([][]kmer.Kmer, r.Size())
	add := func(q query) {
		q.Kmer = spec.Canonical(q.Kmer)
		o := comm.Owner(q.Kmer.Word(), r.Size())
		pending[o] = append(pending[o], q)
		send[o] = append(send[o], q.Kmer)
	}
	for k, ni := range nm.nodes {
		for b := byte(0); b < bnt.BaseTypeNum; b++ {
			if ni.Mask.HasIn(b) {
				add(query{Kmer: spec.InNeighbor(k, b), Base: b, Source: k})
			}
			if ni.Mask.HasOut(b) {
				add(query{Kmer: spec.OutNeighbor(k, b), Base: b, Out: true, Source: k})
			}
		}
	}

	recv, err := comm.Alltoall(r, send)
	if err != nil {
		return 0, err
	}
	reply := make([][]bool, r.Size())
	for src, ks := range recv {
		reply[src] = make([]bool, len(ks))
		for i, k := range ks {
			_, ok := nm.nodes[k]
			reply[src][i] = ok
		}
	}
	answer, err := comm.Alltoall(r, reply)
	if err != nil {
		return 0, err
	}
	for dst, qs := range pending {
		for i, q := range qs {
			if answer[dst][i] {
				continue
			}
			ni := nm.nodes[q.Source]
			if q.Out {
				ni.Mask.ResetOut(q.Base)
			} else {
				ni.Mask.ResetIn(q.Base)
			}
			nm.nodes[q.Source] = ni
			cleared++
		}
	}
	return cleared, nil
}
