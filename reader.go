/*
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
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// ScanState is the position of a Reader in the end-of-archive state machine.
type ScanState int

const (
	ExpectHeaderOrZero ScanState = iota
	SawOneZeroBlock
	Terminated
)

func (s ScanState) String() string {
	switch s {
	case SawOneZeroBlock:
		return "SawOneZeroBlock"
	case Terminated:
		return "Terminated"
	}
	return "ExpectHeaderOrZero"
}

// Reader provides sequential access to the members of a tar archive.
// Call Next to advance to each member, then Read to consume its data.
//
// Example:
//
//	reader, err := NewReader(f)
//	if err != nil {
//		return err
//	}
//	for {
//		hdr, err := reader.Next()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		io.Copy(os.Stdout, reader)
//	}
type Reader struct {
	// r is the underlying archive stream.
	r io.Reader

	// seeker is set when r can skip data regions without reading them.
	seeker io.Seeker

	// name labels errors; it is the archive path when known.
	name string

	opts *Options

	state ScanState

	// offset is the archive position of the next unread byte.
	offset int64

	// size is the length of a seekable archive, or -1.
	size int64

	// headerStart is the archive position of the most recently decoded header.
	headerStart int64

	// nb is the number of bytes in the current data section that remain unread.
	nb int64

	// pad is the number of NUL bytes following the current data section up to the next record
	// boundary.
	pad int64

	record []byte
}

// NewReader creates a new Reader reading from r. When r is also an io.Seeker, data regions that
// are not read are skipped by seeking.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return newReader("", r, o)
}

func newReader(name string, r io.Reader, opts *Options) (*Reader, error) {
	rd := &Reader{
		name:   name,
		opts:   opts,
		size:   -1,
		record: make([]byte, opts.BlockSize),
	}
	if s, ok := r.(io.Seeker); ok {
		if pos, err := s.Seek(0, io.SeekCurrent); err == nil {
			end, err := s.Seek(0, io.SeekEnd)
			if err != nil {
				return nil, osError(name, err, "seeking archive")
			}
			if _, err := s.Seek(pos, io.SeekStart); err != nil {
				return nil, osError(name, err, "seeking archive")
			}
			rd.seeker = s
			rd.offset = pos
			rd.size = end
		}
	}
	if rd.seeker == nil {
		rd.r = bufio.NewReader(r)
	} else {
		rd.r = r
	}
	return rd, nil
}

// State reports where the Reader is in the end-of-archive state machine. After Next returns io.EOF
// it is Terminated only if the archive carried its two zero-record trailer.
func (rd *Reader) State() ScanState {
	return rd.state
}

// Offset is the archive position of the next unread byte.
func (rd *Reader) Offset() int64 {
	return rd.offset
}

// HeaderOffset is the archive position of the header most recently returned by Next.
func (rd *Reader) HeaderOffset() int64 {
	return rd.headerStart
}

func (rd *Reader) truncated(format string, args ...interface{}) error {
	return invalidArchive(rd.name, errors.Wrapf(ErrTruncated, format, args...))
}

func (rd *Reader) skipUnread() error {
	skip := rd.nb + rd.pad
	rd.nb, rd.pad = 0, 0
	if skip == 0 {
		return nil
	}
	if rd.seeker != nil {
		if _, err := rd.seeker.Seek(skip, io.SeekCurrent); err != nil {
			return osError(rd.name, err, "seeking archive")
		}
		rd.offset += skip
		return nil
	}
	n, err := io.CopyN(io.Discard, rd.r, skip)
	rd.offset += n
	if errors.Is(err, io.EOF) {
		return rd.truncated("data region ends at offset %d", rd.offset)
	}
	return osError(rd.name, err, "reading archive")
}

// Next advances to the next member in the archive and returns its header. io.EOF is returned at
// the end of the archive, whether or not a trailer was present; use State to tell the two apart.
func (rd *Reader) Next() (*Header, error) {
	if rd.state == Terminated {
		return nil, io.EOF
	}
	if err := rd.skipUnread(); err != nil {
		return nil, err
	}

	for {
		start := rd.offset
		n, err := io.ReadFull(rd.r, rd.record)
		rd.offset += int64(n)
		switch {
		case err == io.EOF:
			return nil, io.EOF
		case err == io.ErrUnexpectedEOF:
			return nil, rd.truncated("partial record of %d bytes at offset %d", n, start)
		case err != nil:
			return nil, osError(rd.name, err, "reading archive")
		}

		if isZero(rd.record) {
			if rd.state == SawOneZeroBlock {
				rd.state = Terminated
				return nil, io.EOF
			}
			rd.state = SawOneZeroBlock
			continue
		}

		hdr, err := DecodeHeader(rd.record[:HEADER_BYTE_SIZE], rd.opts)
		if err != nil {
			var e *Error
			if errors.As(err, &e) {
				e.Path = rd.name
				e.Err = errors.Wrapf(e.Err, "header at offset %d", start)
			}
			return nil, err
		}
		rd.state = ExpectHeaderOrZero
		rd.headerStart = start
		rd.nb = dataSize(hdr)
		rd.pad = blockPadding(rd.nb, rd.opts.BlockSize)
		if rd.size >= 0 && rd.offset+rd.nb > rd.size {
			return nil, rd.truncated("%q needs %d bytes of data at offset %d, archive is %d bytes", hdr.Name, rd.nb, rd.offset, rd.size)
		}
		return hdr, nil
	}
}

// dataSize is the length of the data region following hdr. Links, devices, FIFOs and directories
// never carry data whatever their size field says.
func dataSize(hdr *Header) int64 {
	switch hdr.Typeflag {
	case HardLink, SymbolicLink, CharacterSpecial, BlockSpecial, Directory, FIFO:
		return 0
	}
	return hdr.Size
}

// Read reads data from the current member of the archive.
func (rd *Reader) Read(b []byte) (n int, err error) {
	if rd.nb == 0 {
		return 0, io.EOF
	}
	if int64(len(b)) > rd.nb {
		b = b[0:rd.nb]
	}
	n, err = rd.r.Read(b)
	rd.nb -= int64(n)
	rd.offset += int64(n)
	if err == io.EOF && rd.nb > 0 {
		return n, rd.truncated("data region ends at offset %d", rd.offset)
	}

	return
}
