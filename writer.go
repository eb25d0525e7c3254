/*
Copyright (c) 2017 Jerry Jacobs <jerry.jacobs@xor-gate.org>
Copyright (c) 2013 Blake Smith <blakesmith0@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package ustar

import (
	"io"

	"github.com/pkg/errors"
)

// Writer provides sequential writing of a tar archive.
// A tar archive is a sequence of header and data records followed by a trailer of two zero
// records. Call WriteHeader to begin writing a new member, then call Write to supply its data.
//
// Example:
// archive, err := ustar.NewWriter(writer)
// header := &ustar.Header{Name: "hello.txt", Mode: 0644, Size: 15}
// if err := archive.WriteHeader(header); err != nil {
// 	return err
// }
// io.Copy(archive, data)
// archive.Close()
type Writer struct {
	// w is the underlying io.Writer to which the archive is written.
	w io.Writer

	blockSize int64

	// closed is true if Close has been called on this Writer, or false if it has not.
	closed bool

	// nb is the number of bytes that have not yet been written (via Write) since the most
	// recent call to WriteHeader.
	nb int64

	// pad is the number of NUL bytes owed after the current member's data.
	pad int64

	// written counts every byte handed to w.
	written int64

	zeros []byte
}

// NewWriter creates a new Writer that writes a tar archive to an underlying io.Writer.
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return newWriter(w, o), nil
}

func newWriter(w io.Writer, opts *Options) *Writer {
	return &Writer{
		w:         w,
		blockSize: opts.BlockSize,
		zeros:     make([]byte, opts.BlockSize),
	}
}

func (tw *Writer) write(p []byte) (int, error) {
	if tw.closed {
		return 0, errors.New("tar: write to closed writer")
	}
	n, err := tw.w.Write(p)
	tw.written += int64(n)
	return n, err
}

// Written is the number of bytes written to the underlying io.Writer so far.
func (tw *Writer) Written() int64 {
	return tw.written
}

// Flush pads the current member's data out to the record boundary. It fails if the member is
// still missing data.
func (tw *Writer) Flush() error {
	if tw.nb > 0 {
		return errors.Errorf("tar: missed writing %d bytes", tw.nb)
	}
	if tw.pad > 0 {
		if _, err := tw.write(tw.zeros[:tw.pad]); err != nil {
			return err
		}
		tw.pad = 0
	}
	return nil
}

// Close finishes the current member and writes the trailer of two zero records. It does not close
// the underlying io.Writer.
func (tw *Writer) Close() error {
	if tw.closed {
		return errors.New("tar: writer closed twice")
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		if _, err := tw.write(tw.zeros); err != nil {
			return err
		}
	}
	tw.closed = true
	return nil
}

// Writes to the current member in the tar archive
// Returns ErrWriteTooLong if more than header.Size
// bytes are written after a call to WriteHeader
func (tw *Writer) Write(b []byte) (n int, err error) {
	if int64(len(b)) > tw.nb {
		b = b[0:tw.nb]
		err = ErrWriteTooLong
	}
	n, werr := tw.write(b)
	tw.nb -= int64(n)
	if werr != nil {
		return n, werr
	}

	return
}

// Writes the header to the underlying writer and prepares
// to receive the member's data
func (tw *Writer) WriteHeader(hdr *Header) error {
	if err := tw.Flush(); err != nil {
		return err
	}
	block, err := hdr.Encode()
	if err != nil {
		return err
	}
	if _, err := tw.write(block); err != nil {
		return err
	}
	if _, err := tw.write(tw.zeros[HEADER_BYTE_SIZE:]); err != nil {
		return err
	}

	tw.nb = dataSize(hdr)
	tw.pad = blockPadding(tw.nb, tw.blockSize)
	return nil
}
