// Package edgelist flattens the local partition of a de Bruijn graph node
// map into (source, neighbor) pairs of canonical vertex IDs.
package edgelist

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/awalterschulze/gographviz"

	"github.com/mudesheng/gaedge/comm"
	"github.com/mudesheng/gaedge/dbgindex"
	"github.com/mudesheng/gaedge/kmer"
	"github.com/mudesheng/gaedge/seqio"
)

// Edge is a directed pair of vertex IDs, each the packed word of a canonical k-mer.
type Edge struct {
	Src, Dst uint64
}

func (e Edge) String() string {
	return fmt.Sprintf("%d\t%d", e.Src, e.Dst)
}

// phase names passed to a PhaseObserver
const (
	PhaseIndex = "index construction"
	PhaseGraph = "graph generation"
)

// PhaseObserver is told when a phase of PopulateEdgeList completed and how
// long it took.
type PhaseObserver func(phase string, elapsed time.Duration)

type options struct {
	index    dbgindex.Options
	observer PhaseObserver
	stat     *dbgindex.Stat
}

type Option func(*options)

// WithIndexOptions replace the node map build options, dbgindex.DefaultOptions by default.
func WithIndexOptions(opt dbgindex.Options) Option {
	return func(o *options) {
		o.index = opt
	}
}

// WithPhaseObserver replace the default observer, which logs every phase.
// A nil observer disables the reports.
func WithPhaseObserver(fn PhaseObserver) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithStat store the statistics of the local node map partition in st.
func WithStat(st *dbgindex.Stat) Option {
	return func(o *options) {
		o.stat = st
	}
}

func logPhase(rank int) PhaseObserver {
	return func(phase string, elapsed time.Duration) {
		log.Printf("[PopulateEdgeList] rank %d: %s completed, took %v\n", rank, phase, elapsed)
	}
}

// PopulateEdgeList build the node map of fileName across the ranks of r's
// group and append to edgeList one pair for every neighbor of every node of
// the local partition. It is collective: every rank must call it. Pairs are
// neither sorted nor deduplicated; on error edgeList must be discarded.
func PopulateEdgeList(edgeList *[]Edge, fileName string, r *comm.Rank, opts ...Option) error {
	return PopulateEdgeListFiles(edgeList, []string{fileName}, r, opts...)
}

// PopulateEdgeListFiles is PopulateEdgeList over the reads of several files.
func PopulateEdgeListFiles(edgeList *[]Edge, fns []string, r *comm.Rank, opts ...Option) error {
	o := options{index: dbgindex.DefaultOptions(), observer: logPhase(r.ID())}
	for _, opt := range opts {
		opt(&o)
	}
	observe := func(phase string, t0 time.Time) {
		if o.observer != nil {
			o.observer(phase, time.Since(t0))
		}
	}

	t0 := time.Now()
	nm, err := dbgindex.BuildFiles(r, fns, o.index)
	if err != nil {
		return fmt.Errorf("[PopulateEdgeList] rank %d build index from: %v: %w", r.ID(), fns, err)
	}
	observe(PhaseIndex, t0)
	if o.stat != nil {
		*o.stat = nm.Stat()
	}

	t1 := time.Now()
	FromNodeMap(edgeList, nm)
	observe(PhaseGraph, t1)
	return nil
}

// FromNodeMap append the edges of every node of nm, incoming neighbors
// first, and return how many were appended. nm is not modified.
func FromNodeMap(edgeList *[]Edge, nm *dbgindex.NodeMap) int {
	spec := nm.Spec()
	el := *edgeList
	n := len(el)
	in := make([]kmer.Kmer, 0, 4)
	out := make([]kmer.Kmer, 0, 4)
	nm.Range(func(k kmer.Kmer, m kmer.EdgeMask) bool {
		src := spec.Canonical(k).Word()
		in = spec.InNeighbors(k, m, in[:0])
		out = spec.OutNeighbors(k, m, out[:0])
		for _, e := range in {
			el = append(el, Edge{Src: src, Dst: spec.Canonical(e).Word()})
		}
		for _, e := range out {
			el = append(el, Edge{Src: src, Dst: spec.Canonical(e).Word()})
		}
		return true
	})
	*edgeList = el
	return len(el) - n
}

// Sort order edges by Src then Dst
func Sort(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		return edges[i].Dst < edges[j].Dst
	})
}

// Dedup sort edges and drop repeated pairs in place, return the shortened slice
func Dedup(edges []Edge) []Edge {
	if len(edges) < 2 {
		return edges
	}
	Sort(edges)
	j := 1
	for i := 1; i < len(edges); i++ {
		if edges[i] != edges[j-1] {
			edges[j] = edges[i]
			j++
		}
	}
	return edges[:j]
}

// Gather concatenate the edge lists of all ranks on root in rank order, other
// ranks get nil. Collective.
func Gather(r *comm.Rank, root int, edges []Edge) ([]Edge, error) {
	all, err := comm.Gather(r, root, edges)
	if err != nil {
		return nil, err
	}
	if all == nil {
		return nil, nil
	}
	var n int
	for _, es := range all {
		n += len(es)
	}
	merged := make([]Edge, 0, n)
	for _, es := range all {
		merged = append(merged, es...)
	}
	return merged, nil
}

// WriteTSV write one "src\tdst" line per edge, compressed by the suffix of fn.
func WriteTSV(fn string, edges []Edge) error {
	w, err := seqio.Create(fn)
	if err != nil {
		return err
	}
	if err := writeTSV(w, edges); err != nil {
		w.Close()
		return fmt.Errorf("[WriteTSV] write file: %s err: %w", fn, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("[WriteTSV] close file: %s err: %w", fn, err)
	}
	return nil
}

func writeTSV(w io.Writer, edges []Edge) error {
	buf := make([]byte, 0, 48)
	for _, e := range edges {
		buf = strconv.AppendUint(buf[:0], e.Src, 10)
		buf = append(buf, '\t')
		buf = strconv.AppendUint(buf, e.Dst, 10)
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// ReadTSV load a file written by WriteTSV.
func ReadTSV(fn string) ([]Edge, error) {
	rc, err := seqio.Open(fn)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var edges []Edge
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		src, dst, ok := strings.Cut(sc.Text(), "\t")
		if !ok {
			return nil, fmt.Errorf("[ReadTSV] file: %s line: %d not 'src\\tdst'", fn, len(edges)+1)
		}
		var e Edge
		if e.Src, err = strconv.ParseUint(src, 10, 64); err != nil {
			return nil, fmt.Errorf("[ReadTSV] file: %s line: %d err: %w", fn, len(edges)+1, err)
		}
		if e.Dst, err = strconv.ParseUint(dst, 10, 64); err != nil {
			return nil, fmt.Errorf("[ReadTSV] file: %s line: %d err: %w", fn, len(edges)+1, err)
		}
		edges = append(edges, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("[ReadTSV] read file: %s err: %w", fn, err)
	}
	return edges, nil
}

// WriteDot write edges as a graphviz digraph, node labels are the k-mers
// decoded with spec. Only meant for small graphs.
func WriteDot(fn string, edges []Edge, spec kmer.Spec) error {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		return err
	}
	if err := g.SetDir(true); err != nil {
		return err
	}
	if err := g.SetStrict(false); err != nil {
		return err
	}
	seen := make(map[uint64]bool)
	addNode := func(id uint64) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		attr := make(map[string]string)
		attr["color"] = "Green"
		attr["shape"] = "box"
		attr["label"] = "\"" + spec.String(kmer.Kmer(id)) + "\""
		return g.AddNode("G", strconv.FormatUint(id, 10), attr)
	}
	for _, e := range edges {
		if err := addNode(e.Src); err != nil {
			return err
		}
		if err := addNode(e.Dst); err != nil {
			return err
		}
		attr := make(map[string]string)
		attr["color"] = "Blue"
		if err := g.AddEdge(strconv.FormatUint(e.Src, 10), strconv.FormatUint(e.Dst, 10), true, attr); err != nil {
			return err
		}
	}

	gfp, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("[WriteDot] create file: %s failed, err: %w", fn, err)
	}
	if _, err := gfp.WriteString(g.String()); err != nil {
		gfp.Close()
		return fmt.Errorf("[WriteDot] write file: %s failed, err: %w", fn, err)
	}
	return gfp.Close()
}
