package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jwaldrip/odin/cli"

	"github.com/mudesheng/gaedge/bnt"
	"github.com/mudesheng/gaedge/kmer"
	"github.com/mudesheng/gaedge/seqio"
)

type ArgsOpt struct {
	Prefix     string
	Kmer       int
	NumCPU     int
	CfgFn      string
	Cpuprofile string
}

// CheckGlobalArgs return global arguments of the application command c
func CheckGlobalArgs(c cli.Command) (opt ArgsOpt, err error) {
	opt.Prefix = c.Flag("p").String()
	opt.CfgFn = c.Flag("C").String()
	opt.Cpuprofile = c.Flag("cpuprofile").String()

	var ok bool
	opt.Kmer, ok = c.Flag("K").Get().(int)
	if !ok {
		return opt, fmt.Errorf("[CheckGlobalArgs] args 'K' : %v set error", c.Flag("K").String())
	}
	opt.NumCPU, ok = c.Flag("t").Get().(int)
	if !ok {
		return opt, fmt.Errorf("[CheckGlobalArgs] args 't': %v set error", c.Flag("t").String())
	}
	return opt, opt.Validate()
}

func (opt ArgsOpt) Validate() error {
	if opt.Prefix == "" {
		return fmt.Errorf("[CheckGlobalArgs] args 'p' not set")
	}
	if _, err := kmer.NewSpec(opt.Kmer); err != nil {
		return fmt.Errorf("[CheckGlobalArgs] the argument 'K':%d must odd number small than %d: %w", opt.Kmer, bnt.NumBaseInUint64, err)
	}
	if opt.NumCPU < 1 {
		return fmt.Errorf("[CheckGlobalArgs] args 't': %d must >= 1", opt.NumCPU)
	}
	return nil
}

type LibInfo struct {
	Name       string   // name of library
	InsertSize int      // paired read insert size
	InsertSD   int      // Standard Deviation
	FnName     []string // the files name slice
}

type CfgInfo struct {
	MaxRdLen int // maximum read length
	MinRdLen int // minimum read length
	Libs     []LibInfo
}

// Files return the reads files of every library in configure order
func (cfg CfgInfo) Files() (fns []string) {
	for _, lib := range cfg.Libs {
		fns = append(fns, lib.FnName...)
	}
	return fns
}

// ParseCfg read a library configure file:
//
//	max_rd_len = 250
//	[LIB]
//	name = lib1
//	p = reads.fq.zst
//
// lines starting with '#' or ';' are comments.
func ParseCfg(fn string) (cfgInfo CfgInfo, err error) {
	inFile, err := os.Open(fn)
	if err != nil {
		return cfgInfo, err
	}
	defer inFile.Close()
	return parseCfg(inFile, fn)
}

func parseCfg(r io.Reader, fn string) (cfgInfo CfgInfo, err error) {
	var libInfo LibInfo
	sc := bufio.NewScanner(r)
	ln := 0
	for sc.Scan() {
		ln++
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0][0] == '#' || fields[0][0] == ';' {
			continue
		}
		if fields[0] == "[global_setting]" {
			continue
		}
		if fields[0] == "[LIB]" {
			if libInfo.Name != "" || len(libInfo.FnName) > 0 {
				cfgInfo.Libs = append(cfgInfo.Libs, libInfo)
				libInfo = LibInfo{}
			}
			continue
		}
		if len(fields) != 3 || fields[1] != "=" {
			return cfgInfo, fmt.Errorf("[ParseCfg] file: %s line %d: '%s' not 'key = value'", fn, ln, line)
		}
		var v int
		switch fields[0] {
		case "max_rd_len":
			v, err = strconv.Atoi(fields[2])
			cfgInfo.MaxRdLen = v
		case "min_rd_len":
			v, err = strconv.Atoi(fields[2])
			cfgInfo.MinRdLen = v
		case "name":
			libInfo.Name = fields[2]
		case "avg_insert_len":
			v, err = strconv.Atoi(fields[2])
			libInfo.InsertSize = v
		case "insert_SD":
			v, err = strconv.Atoi(fields[2])
			libInfo.InsertSD = v
		case "p", "LR":
			if _, err = seqio.GetReadsFileFormat(fields[2]); err == nil {
				libInfo.FnName = append(libInfo.FnName, fields[2])
			}
		default:
			return cfgInfo, fmt.Errorf("[ParseCfg] file: %s noknown line %d: %s", fn, ln, line)
		}
		if err != nil {
			return cfgInfo, fmt.Errorf("[ParseCfg] file: %s line %d: %w", fn, ln, err)
		}
	}
	if err := sc.Err(); err != nil {
		return cfgInfo, err
	}
	if libInfo.Name != "" || len(libInfo.FnName) > 0 {
		cfgInfo.Libs = append(cfgInfo.Libs, libInfo)
	}
	return cfgInfo, nil
}
