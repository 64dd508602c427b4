package seqio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/google/brotli/go/cbrotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fqContent = "@r1 first\nACGTACGTNN\n+\nIIIIIIIIII\n@r2\nTTTTGGGG\n+\nIIIIIIII\n"

func writeFile(t *testing.T, fn string, content []byte) {
	t.Helper()
	fp, err := os.Create(fn)
	require.NoError(t, err)
	defer fp.Close()
	var w io.WriteCloser
	switch filepath.Ext(fn) {
	case ".gz":
		w = gzip.NewWriter(fp)
	case ".zst":
		zw, err := zstd.NewWriter(fp)
		require.NoError(t, err)
		w = zw
	case ".br":
		w = cbrotli.NewWriter(fp, cbrotli.WriterOptions{Quality: 1})
	default:
		_, err = fp.Write(content)
		require.NoError(t, err)
		return
	}
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readAll(t *testing.T, fn string) []Record {
	t.Helper()
	var recs []Record
	err := ForEach(fn, func(idx int, rec Record) error {
		require.Equal(t, len(recs), idx)
		recs = append(recs, rec)
		return nil
	})
	require.NoError(t, err)
	return recs
}

func TestGetReadsFileFormat(t *testing.T) {
	tests := []struct {
		fn     string
		format string
	}{
		{"a.fq", FormatFastq},
		{"dir.x/a.fastq.zst", FormatFastq},
		{"a.FQ.gz", FormatFastq},
		{"a.fa.br", FormatFasta},
		{"a.fasta", FormatFasta},
		{"reads.bam", FormatBam},
	}
	for _, tt := range tests {
		f, err := GetReadsFileFormat(tt.fn)
		require.NoError(t, err, tt.fn)
		assert.Equal(t, tt.format, f, tt.fn)
	}
	for _, fn := range []string{"reads", "a.txt", "a.gz", "a.sam.zst"} {
		_, err := GetReadsFileFormat(fn)
		assert.ErrorIs(t, err, ErrUnknownFormat, fn)
	}
}

func TestReadFastqCompressed(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"r.fq", "r.fq.gz", "r.fq.zst", "r.fastq.br"} {
		fn := filepath.Join(dir, name)
		writeFile(t, fn, []byte(fqContent))
		recs := readAll(t, fn)
		require.Len(t, recs, 2, name)
		assert.Equal(t, "r1", recs[0].ID, name)
		assert.Equal(t, "ACGTACGTNN", string(recs[0].Seq), name)
		assert.Equal(t, "TTTTGGGG", string(recs[1].Seq), name)
	}
}

func TestReadFasta(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "r.fa")
	writeFile(t, fn, []byte(">c1\nACGT\nacgt\n>c2\nGG\n"))
	recs := readAll(t, fn)
	require.Len(t, recs, 2)
	assert.Equal(t, "ACGTacgt", string(recs[0].Seq))
	assert.Equal(t, "c2", recs[1].ID)
}

func TestReadBam(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "r.bam")
	fp, err := os.Create(fn)
	require.NoError(t, err)
	h, err := sam.NewHeader(nil, nil)
	require.NoError(t, err)
	bw, err := bam.NewWriter(fp, h, 1)
	require.NoError(t, err)
	seq := []byte("ACGTTGCA")
	qual := []byte{30, 30, 30, 30, 30, 30, 30, 30}
	rec, err := sam.NewRecord("u1", nil, nil, -1, -1, 0, 0, nil, seq, qual, nil)
	require.NoError(t, err)
	require.NoError(t, bw.Write(rec))
	require.NoError(t, bw.Close())
	require.NoError(t, fp.Close())

	recs := readAll(t, fn)
	require.Len(t, recs, 1)
	assert.Equal(t, "u1", recs[0].ID)
	assert.Equal(t, "ACGTTGCA", string(recs[0].Seq))
}

func TestForEachStop(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "r.fq")
	writeFile(t, fn, []byte(fqContent))
	stop := errors.New("stop")
	n := 0
	err := ForEach(fn, func(idx int, rec Record) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestOpenMissing(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.fq"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateOpen(t *testing.T) {
	dir := t.TempDir()
	for _, suffix := range []string{"", ".gz", ".zst", ".br"} {
		fn := filepath.Join(dir, "out.txt"+suffix)
		w, err := Create(fn)
		require.NoError(t, err)
		_, err = io.WriteString(w, fqContent)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		rc, err := Open(fn)
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, fqContent, string(b), suffix)
	}
}
