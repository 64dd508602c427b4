// Package seqio reads sequencing reads from FASTQ (the default), FASTA and
// unaligned BAM files, plain or compressed with gzip, zstd or brotli.
package seqio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/bam"
	"github.com/google/brotli/go/cbrotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	FormatFastq = "fq"
	FormatFasta = "fa"
	FormatBam   = "bam"
)

var ErrUnknownFormat = errors.New("unknown reads file format")

// Record is one read; Seq holds letters, not codes.
type Record struct {
	ID  string
	Seq []byte
}

// GetReadsFileFormat identify the reads format from the file suffix, a
// trailing compression suffix is skipped.
func GetReadsFileFormat(fn string) (format string, err error) {
	sfn := strings.Split(strings.ToLower(fn), ".")
	if len(sfn) < 2 {
		return "", fmt.Errorf("[GetReadsFileFormat] reads file: %v need suffix '*.[fq|fastq|fa|fasta|bam][.gz|.zst|.br]': %w", fn, ErrUnknownFormat)
	}
	tmp := sfn[len(sfn)-1]
	if compression(tmp) && len(sfn) > 2 {
		tmp = sfn[len(sfn)-2]
	}
	switch tmp {
	case "fq", "fastq":
		format = FormatFastq
	case "fa", "fasta":
		format = FormatFasta
	case "bam":
		format = FormatBam
	default:
		return "", fmt.Errorf("[GetReadsFileFormat] reads file: %v need suffix '*.[fq|fastq|fa|fasta|bam][.gz|.zst|.br]': %w", fn, ErrUnknownFormat)
	}
	return format, nil
}

func compression(suffix string) bool {
	return suffix == "gz" || suffix == "zst" || suffix == "br"
}

type multiCloser []io.Closer

func (mc multiCloser) Close() (err error) {
	for i := len(mc) - 1; i >= 0; i-- {
		if e := mc[i].Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open return a reader of the decompressed content of fn, chosen by suffix.
func Open(fn string) (io.ReadCloser, error) {
	fp, err := os.Open(fn)
	if err != nil {
		return nil, fmt.Errorf("[Open] open file: %v failed: %w", fn, err)
	}
	var r io.Reader
	closers := multiCloser{fp}
	switch {
	case strings.HasSuffix(fn, ".gz"):
		gz, err := gzip.NewReader(fp)
		if err != nil {
			fp.Close()
			return nil, fmt.Errorf("[Open] file: %v not gzip format: %w", fn, err)
		}
		r = gz
		closers = append(closers, gz)
	case strings.HasSuffix(fn, ".zst"):
		zr, err := zstd.NewReader(fp, zstd.WithDecoderConcurrency(1))
		if err != nil {
			fp.Close()
			return nil, fmt.Errorf("[Open] zstd open file: %v failed: %w", fn, err)
		}
		r = zr
		closers = append(closers, closerFunc(func() error { zr.Close(); return nil }))
	case strings.HasSuffix(fn, ".br"):
		br := cbrotli.NewReader(fp)
		r = br
		closers = append(closers, br)
	default:
		r = fp
	}
	return struct {
		io.Reader
		io.Closer
	}{bufio.NewReaderSize(r, 1<<20), closers}, nil
}

type flushCloser struct {
	*bufio.Writer
	closers multiCloser
}

func (fc flushCloser) Close() error {
	err := fc.Flush()
	if e := fc.closers.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

// Create return a buffered writer to fn compressed by suffix like Open. The
// data is only complete once Close returns nil.
func Create(fn string) (io.WriteCloser, error) {
	fp, err := os.Create(fn)
	if err != nil {
		return nil, fmt.Errorf("[Create] create file: %v failed: %w", fn, err)
	}
	var w io.Writer
	closers := multiCloser{fp}
	switch {
	case strings.HasSuffix(fn, ".gz"):
		gz := gzip.NewWriter(fp)
		w = gz
		closers = append(closers, gz)
	case strings.HasSuffix(fn, ".zst"):
		zw, err := zstd.NewWriter(fp, zstd.WithEncoderCRC(false), zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(1))
		if err != nil {
			fp.Close()
			return nil, fmt.Errorf("[Create] zstd create file: %v failed: %w", fn, err)
		}
		w = zw
		closers = append(closers, zw)
	case strings.HasSuffix(fn, ".br"):
		br := cbrotli.NewWriter(fp, cbrotli.WriterOptions{Quality: 1})
		w = br
		closers = append(closers, br)
	default:
		w = fp
	}
	return flushCloser{bufio.NewWriterSize(w, 1<<20), closers}, nil
}

// Reader yields reads of one file in file order.
type Reader struct {
	fn     string
	format string
	rc     io.ReadCloser
	fq     *fastq.Reader
	fa     *fasta.Reader
	bam    *bam.Reader
}

func NewReader(fn string) (*Reader, error) {
	format, err := GetReadsFileFormat(fn)
	if err != nil {
		return nil, err
	}
	rc, err := Open(fn)
	if err != nil {
		return nil, err
	}
	r := &Reader{fn: fn, format: format, rc: rc}
	switch format {
	case FormatFastq:
		r.fq = fastq.NewReader(rc, linear.NewQSeq("", nil, alphabet.DNA, alphabet.Sanger))
	case FormatFasta:
		r.fa = fasta.NewReader(rc, linear.NewSeq("", nil, alphabet.DNA))
	case FormatBam:
		r.bam, err = bam.NewReader(rc, 1)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("[NewReader] create bam.NewReader file: %v err: %w", fn, err)
		}
	}
	return r, nil
}

func (r *Reader) Format() string {
	return r.format
}

// Read return the next read, io.EOF after the last one.
func (r *Reader) Read() (rec Record, err error) {
	switch r.format {
	case FormatFastq:
		s, err := r.fq.Read()
		if err != nil {
			return rec, r.wrap(err)
		}
		qs := s.(*linear.QSeq)
		rec.ID = qs.Name()
		rec.Seq = make([]byte, len(qs.Seq))
		for i, ql := range qs.Seq {
			rec.Seq[i] = byte(ql.L)
		}
	case FormatFasta:
		s, err := r.fa.Read()
		if err != nil {
			return rec, r.wrap(err)
		}
		l := s.(*linear.Seq)
		rec.ID = l.Name()
		rec.Seq = make([]byte, len(l.Seq))
		for i, c := range l.Seq {
			rec.Seq[i] = byte(c)
		}
	case FormatBam:
		sr, err := r.bam.Read()
		if err != nil {
			return rec, r.wrap(err)
		}
		rec.ID = sr.Name
		rec.Seq = sr.Seq.Expand()
	}
	return rec, nil
}

func (r *Reader) wrap(err error) error {
	if err == io.EOF {
		return err
	}
	return fmt.Errorf("[Read] read file: %s, found err: %w", r.fn, err)
}

func (r *Reader) Close() error {
	if r.bam != nil {
		r.bam.Close()
	}
	return r.rc.Close()
}

// ForEach call fn with the index and content of every read of fn. A non nil
// error from fn stops the iteration and is returned.
func ForEach(fn string, f func(idx int, rec Record) error) error {
	r, err := NewReader(fn)
	if err != nil {
		return err
	}
	defer r.Close()
	for idx := 0; ; idx++ {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := f(idx, rec); err != nil {
			return err
		}
	}
}
