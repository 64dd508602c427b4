package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudesheng/gaedge/kmer"
	"github.com/mudesheng/gaedge/seqio"
)

const cfgContent = `# test library
[global_setting]
max_rd_len = 250
min_rd_len = 100

[LIB]
name = lib1
avg_insert_len = 300
insert_SD = 30
p = ./reads_1.fq.zst
p = ./reads_2.fq.zst

[LIB]
; long reads
name = ont
LR = ./ont.fa.br
`

func TestParseCfg(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "ga.cfg")
	require.NoError(t, os.WriteFile(fn, []byte(cfgContent), 0644))
	cfg, err := ParseCfg(fn)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.MaxRdLen)
	assert.Equal(t, 100, cfg.MinRdLen)
	require.Len(t, cfg.Libs, 2)
	assert.Equal(t, LibInfo{Name: "lib1", InsertSize: 300, InsertSD: 30, FnName: []string{"./reads_1.fq.zst", "./reads_2.fq.zst"}}, cfg.Libs[0])
	assert.Equal(t, []string{"./reads_1.fq.zst", "./reads_2.fq.zst", "./ont.fa.br"}, cfg.Files())
}

func TestParseCfgErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{"unknown key", "[LIB]\nfoo = 1\n", nil},
		{"bad int", "max_rd_len = abc\n", nil},
		{"no value", "[LIB]\nname lib1\n", nil},
		{"bad suffix", "[LIB]\nname = a\np = reads.txt\n", seqio.ErrUnknownFormat},
	}
	for _, tt := range tests {
		_, err := parseCfg(strings.NewReader(tt.content), tt.name)
		require.Error(t, err, tt.name)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, tt.name)
		}
	}
	_, err := ParseCfg(filepath.Join(t.TempDir(), "none.cfg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	ok := ArgsOpt{Prefix: "out/K31", Kmer: 31, NumCPU: 4}
	assert.NoError(t, ok.Validate())

	opt := ok
	opt.Prefix = ""
	assert.Error(t, opt.Validate())

	opt = ok
	opt.Kmer = 63
	assert.ErrorIs(t, opt.Validate(), kmer.ErrKmerWidth)

	opt = ok
	opt.Kmer = 30
	assert.Error(t, opt.Validate())

	opt = ok
	opt.NumCPU = 0
	assert.Error(t, opt.Validate())
}
