package ustar

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Options configures the archive operations. Build one with NewOptions rather than by hand so
// that the defaults are applied.
type Options struct {
	BlockSize      int64
	StrictMagic    bool
	VerifyChecksum bool
	Verbose        bool
	Output         io.Writer
	Destination    string
	Workers        int
}

type Option func(*Options)

// WithBlockSize sets the record size used for headers, data padding and the trailer. It must be a
// positive multiple of 512.
func WithBlockSize(n int64) Option {
	return func(o *Options) {
		o.BlockSize = n
	}
}

// WithStrictMagic makes header decoding reject blocks that do not carry the "ustar" magic, which
// excludes pre-POSIX archives.
func WithStrictMagic(strict bool) Option {
	return func(o *Options) {
		o.StrictMagic = strict
	}
}

func WithChecksumVerification(verify bool) Option {
	return func(o *Options) {
		o.VerifyChecksum = verify
	}
}

func WithVerbose(verbose bool) Option {
	return func(o *Options) {
		o.Verbose = verbose
	}
}

// WithOutput sets where progress and listings are printed.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// WithDestination sets the directory that Extract unpacks into.
func WithDestination(dir string) Option {
	return func(o *Options) {
		o.Destination = dir
	}
}

// WithWorkers sets how many member files Extract copies concurrently.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// NewOptions applies opts over the defaults and validates the result.
func NewOptions(opts ...Option) (*Options, error) {
	o := &Options{
		BlockSize:      DEFAULT_BLOCK_SIZE,
		VerifyChecksum: true,
		Output:         os.Stdout,
		Destination:    ".",
		Workers:        1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.BlockSize <= 0 || o.BlockSize%HEADER_BYTE_SIZE != 0 {
		return nil, operationError("", errors.Errorf("block size %d is not a multiple of %d", o.BlockSize, HEADER_BYTE_SIZE))
	}
	if o.Workers < 1 {
		return nil, operationError("", errors.Errorf("invalid worker count %d", o.Workers))
	}
	if o.Output == nil {
		o.Output = io.Discard
	}
	return o, nil
}
