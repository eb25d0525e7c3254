package ustar

import (
	"io"

	"github.com/moby/sys/sequential"
)

// Member locates one archive member: its decoded header and where its header and data begin in
// the archive.
type Member struct {
	Header      *Header
	HeaderStart int64
	DataStart   int64
}

// DataSize is the number of content bytes stored at DataStart.
func (m Member) DataSize() int64 {
	return dataSize(m.Header)
}

// Archive is the ordered list of members found by one scan of an archive. It holds no reference to
// the archive stream.
type Archive struct {
	members    []Member
	terminated bool
}

// Members returns the members in archive order.
func (a *Archive) Members() []Member {
	return append([]Member(nil), a.members...)
}

func (a *Archive) Len() int {
	return len(a.members)
}

// Terminated reports whether the scan stopped at the two zero-record trailer rather than at the
// end of the stream.
func (a *Archive) Terminated() bool {
	return a.terminated
}

// Scan reads every header in r and returns the members in order. Data regions are skipped, by
// seeking when r supports it.
func Scan(r io.Reader, opts ...Option) (*Archive, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return scan("", r, o)
}

// ScanFile scans the archive at path.
func ScanFile(path string, opts ...Option) (*Archive, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return scanFile(path, o)
}

func scanFile(path string, opts *Options) (*Archive, error) {
	f, err := sequential.Open(path)
	if err != nil {
		return nil, osError(path, err, "cannot open archive")
	}
	defer f.Close()
	return scan(path, f, opts)
}

func scan(name string, r io.Reader, opts *Options) (*Archive, error) {
	rd, err := newReader(name, r, opts)
	if err != nil {
		return nil, err
	}
	a := &Archive{}
	for {
		hdr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		a.members = append(a.members, Member{
			Header:      hdr,
			HeaderStart: rd.HeaderOffset(),
			DataStart:   rd.HeaderOffset() + opts.BlockSize,
		})
	}
	a.terminated = rd.State() == Terminated
	return a, nil
}
