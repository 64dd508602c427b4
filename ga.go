package main

import (
	"github.com/jwaldrip/odin/cli"

	"github.com/mudesheng/gaedge/dbgindex"
	"github.com/mudesheng/gaedge/kmer"
)

var app = cli.New("1.0.0", "de Bruijn graph edge list generator", func(c cli.Command) {})

func init() {
	app.DefineStringFlag("C", "", "library configure file, used when the subcommand has no input file")
	app.DefineStringFlag("cpuprofile", "", "write cpu profile to file")
	app.DefineIntFlag("K", kmer.DefaultK, "kmer length, odd number <= 31")
	app.DefineStringFlag("p", "./K31", "prefix of the output file")
	app.DefineIntFlag("t", 1, "number of workers (ranks) used")
	edges := app.DefineSubCommand("edges", "build the de Bruijn graph of the reads and write its edge list", Edges)
	{
		edges.DefineStringFlag("i", "", "input reads file *.[fq|fa|bam][.gz|.zst|.br]")
		edges.DefineIntFlag("MinKmerFreq", 1, "Min Kmer Freq allown store[1~7]")
		edges.DefineInt64Flag("S", int64(dbgindex.DefaultOptions().CFSize), "the Size number of items cuckoofilter set per worker")
		edges.DefineIntFlag("BatchReads", dbgindex.DefaultOptions().BatchReads, "reads parsed per worker between two exchanges")
		edges.DefineBoolFlag("Dedup", false, "sort and remove duplicate edges before output")
		edges.DefineBoolFlag("Graph", false, "output dot graph file")
		edges.DefineBoolFlag("cfdump", false, "write the cuckoofilter of every worker, MinKmerFreq > 1 only")
	}
	cfstat := app.DefineSubCommand("cfstat", "print count statistics of a dumped cuckoofilter", CFStat)
	{
		cfstat.DefineStringFlag("i", "", "cuckoofilter file *.cf.br")
	}
}

func main() {
	app.Start()
}
