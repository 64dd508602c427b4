package main

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/jwaldrip/odin/cli"

	"github.com/mudesheng/gaedge/comm"
	"github.com/mudesheng/gaedge/cuckoofilter"
	"github.com/mudesheng/gaedge/dbgindex"
	"github.com/mudesheng/gaedge/edgelist"
	"github.com/mudesheng/gaedge/kmer"
	"github.com/mudesheng/gaedge/utils"
)

type optionsEdges struct {
	utils.ArgsOpt
	Input       string
	MinKmerFreq int
	CFSize      int64
	BatchReads  int
	Dedup       bool
	Graph       bool
	CFDump      bool
}

func checkArgsEdges(c cli.Command) (opt optionsEdges, err error) {
	opt.ArgsOpt, err = utils.CheckGlobalArgs(c.Parent())
	if err != nil {
		return opt, err
	}
	var ok bool
	opt.Input = c.Flag("i").String()
	if opt.MinKmerFreq, ok = c.Flag("MinKmerFreq").Get().(int); !ok {
		return opt, fmt.Errorf("[checkArgsEdges] argument 'MinKmerFreq': %v set error", c.Flag("MinKmerFreq"))
	}
	if opt.CFSize, ok = c.Flag("S").Get().(int64); !ok {
		return opt, fmt.Errorf("[checkArgsEdges] argument 'S': %v set error", c.Flag("S"))
	}
	if opt.BatchReads, ok = c.Flag("BatchReads").Get().(int); !ok {
		return opt, fmt.Errorf("[checkArgsEdges] argument 'BatchReads': %v set error", c.Flag("BatchReads"))
	}
	opt.Dedup = c.Flag("Dedup").Get().(bool)
	opt.Graph = c.Flag("Graph").Get().(bool)
	opt.CFDump = c.Flag("cfdump").Get().(bool)
	return opt, opt.validate()
}

func (opt optionsEdges) validate() error {
	if opt.Input == "" && opt.CfgFn == "" {
		return fmt.Errorf("[checkArgsEdges] one of argument 'i' and global argument 'C' must set")
	}
	if opt.MinKmerFreq < 1 || opt.MinKmerFreq > cuckoofilter.MaxC {
		return fmt.Errorf("[checkArgsEdges] the argument 'MinKmerFreq': %v must [%v ~ %v]", opt.MinKmerFreq, 1, cuckoofilter.MaxC)
	}
	if opt.MinKmerFreq > 1 && opt.CFSize < 1024 {
		return fmt.Errorf("[checkArgsEdges] the argument 'S':%d must bigger than 1024", opt.CFSize)
	}
	if opt.BatchReads < 1 {
		return fmt.Errorf("[checkArgsEdges] the argument 'BatchReads':%d must >= 1", opt.BatchReads)
	}
	return nil
}

func (opt optionsEdges) readsFiles() ([]string, error) {
	if opt.Input != "" {
		return []string{opt.Input}, nil
	}
	cfg, err := utils.ParseCfg(opt.CfgFn)
	if err != nil {
		return nil, err
	}
	fns := cfg.Files()
	if len(fns) == 0 {
		return nil, fmt.Errorf("[readsFiles] configure file: %s has no reads file", opt.CfgFn)
	}
	return fns, nil
}

func (opt optionsEdges) indexOptions() dbgindex.Options {
	iopt := dbgindex.DefaultOptions()
	iopt.K = opt.Kmer
	iopt.MinKmerFreq = opt.MinKmerFreq
	iopt.CFSize = uint64(opt.CFSize)
	iopt.BatchReads = opt.BatchReads
	if opt.CFDump {
		iopt.CFDump = opt.Prefix
	}
	return iopt
}

type edgesStat struct {
	Nodes, Kmers, Edges uint64
}

// runEdges build the edge list on NumCPU ranks, gather it on rank 0 and
// write prefix.edges.zst (and prefix.edges.dot with Graph).
func runEdges(opt optionsEdges) (st edgesStat, err error) {
	fns, err := opt.readsFiles()
	if err != nil {
		return st, err
	}
	iopt := opt.indexOptions()
	var all []edgelist.Edge
	err = comm.Run(opt.NumCPU, func(r *comm.Rank) error {
		var el []edgelist.Edge
		var ls dbgindex.Stat
		if err := edgelist.PopulateEdgeListFiles(&el, fns, r, edgelist.WithIndexOptions(iopt), edgelist.WithStat(&ls)); err != nil {
			return err
		}
		nodes, err := comm.AllreduceSum(r, ls.Nodes)
		if err != nil {
			return err
		}
		kmers, err := comm.AllreduceSum(r, ls.Kmers)
		if err != nil {
			return err
		}
		edges, err := comm.AllreduceSum(r, uint64(len(el)))
		if err != nil {
			return err
		}
		gathered, err := edgelist.Gather(r, 0, el)
		if err != nil {
			return err
		}
		if r.ID() == 0 {
			st = edgesStat{Nodes: nodes, Kmers: kmers, Edges: edges}
			all = gathered
		}
		return nil
	})
	if err != nil {
		return st, err
	}
	log.Printf("[runEdges] total nodes: %d, kmers: %d, edges: %d\n", st.Nodes, st.Kmers, st.Edges)

	if opt.Dedup {
		all = edgelist.Dedup(all)
		log.Printf("[runEdges] after Dedup edges: %d\n", len(all))
	}
	if err := edgelist.WriteTSV(opt.Prefix+".edges.zst", all); err != nil {
		return st, err
	}
	if opt.Graph {
		if err := edgelist.WriteDot(opt.Prefix+".edges.dot", all, kmer.MustSpec(opt.Kmer)); err != nil {
			return st, err
		}
	}
	return st, nil
}

// startCPUProfile start profiling to fn, the returned stop flushes and closes
// the profile. An empty fn profiles nothing.
func startCPUProfile(fn string) (stop func() error, err error) {
	if fn == "" {
		return func() error { return nil }, nil
	}
	cpuprofilefp, err := os.Create(fn)
	if err != nil {
		return nil, fmt.Errorf("[startCPUProfile] open cpuprofile file: %v failed: %w", fn, err)
	}
	if err := pprof.StartCPUProfile(cpuprofilefp); err != nil {
		cpuprofilefp.Close()
		return nil, fmt.Errorf("[startCPUProfile] start cpuprofile: %v failed: %w", fn, err)
	}
	return func() error {
		pprof.StopCPUProfile()
		return cpuprofilefp.Close()
	}, nil
}

// Edges is the "edges" subcommand
func Edges(c cli.Command) {
	t0 := time.Now()
	opt, err := checkArgsEdges(c)
	if err != nil {
		log.Fatalf("[Edges] check Arguments error: %v\n", err)
	}
	log.Printf("[Edges] opt: %+v\n", opt)
	stop, err := startCPUProfile(opt.Cpuprofile)
	if err != nil {
		log.Fatalf("[Edges] %v\n", err)
	}
	_, err = runEdges(opt)
	// the profile is flushed before a failed run exits
	if e := stop(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		log.Fatalf("[Edges] %v\n", err)
	}
	log.Printf("[Edges] total used: %v\n", time.Since(t0))
}

// CFStat is the "cfstat" subcommand
func CFStat(c cli.Command) {
	fn := c.Flag("i").String()
	if fn == "" {
		log.Fatalf("[CFStat] argument 'i' not set\n")
	}
	cf, err := cuckoofilter.ReadCuckooFilter(fn)
	if err != nil {
		log.Fatalf("[CFStat] %v\n", err)
	}
	ca, load := cf.GetStat()
	fmt.Printf("buckets\t%d\nitems\t%d\nload\t%.4f\n", len(cf.Hash), cf.Count, load)
	for i, n := range ca {
		fmt.Printf("count %d\t%d\n", i, n)
	}
}
