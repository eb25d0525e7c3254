package ustar

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// field locates one header field inside a 512 byte block.
type field struct {
	offset int
	length int
}

func (f field) slice(block []byte) []byte {
	return block[f.offset : f.offset+f.length]
}

// Header block layout. The ustar prefix and the star prefix overlap; star archives are recognised
// by their trailer, GNU archives by their magic (GNU keeps atime/ctime where ustar keeps the prefix).
var (
	fieldName     = field{0, 100}
	fieldMode     = field{100, 8}
	fieldUid      = field{108, 8}
	fieldGid      = field{116, 8}
	fieldSize     = field{124, 12}
	fieldModTime  = field{136, 12}
	fieldChksum   = field{148, 8}
	fieldTypeflag = field{156, 1}
	fieldLinkname = field{157, 100}
	fieldMagic    = field{257, 6}
	fieldVersion  = field{263, 2}
	fieldUname    = field{265, 32}
	fieldGname    = field{297, 32}
	fieldDevmajor = field{329, 8}
	fieldDevminor = field{337, 8}
	fieldPrefix   = field{345, 155}

	fieldStarPrefix  = field{345, 131}
	fieldStarAtime   = field{476, 12}
	fieldStarCtime   = field{488, 12}
	fieldStarTrailer = field{508, 4}

	fieldGNUAtime = field{345, 12}
	fieldGNUCtime = field{357, 12}
)

const (
	magicUSTAR = "ustar\x00"
	magicGNU   = "ustar "

	// Latest second representable as a calendar date with a four digit year.
	maxUnixSeconds = 253402300799
)

// text decodes a string field: it ends at the first NUL and any non-ASCII byte is dropped.
func (f field) text(block []byte) string {
	b := f.slice(block)
	var sb strings.Builder
	for _, c := range b {
		if c == 0 {
			break
		}
		if c < 0x80 {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// octal decodes a numeric field from whatever ASCII digits it contains. Fields that do not parse
// decode as zero; ok is false when there were no digits at all.
func (f field) octal(block []byte) (n uint64, ok bool) {
	var digits []byte
	for _, c := range f.slice(block) {
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(string(digits), 8, 64)
	if err != nil {
		return 0, true
	}
	return n, true
}

func (f field) timestamp(block []byte) (t time.Time, ok bool, err error) {
	n, ok := f.octal(block)
	if n > maxUnixSeconds {
		return time.Time{}, ok, errors.Errorf("timestamp %d out of range", n)
	}
	return time.Unix(int64(n), 0), ok, nil
}

// ComputeChecksum sums the header block with the checksum field counted as spaces. POSIX specifies
// unsigned bytes; some historic implementations summed signed bytes, so both are returned.
func ComputeChecksum(block []byte) (unsigned, signed int64) {
	for i, c := range block[:HEADER_BYTE_SIZE] {
		if i >= fieldChksum.offset && i < fieldChksum.offset+fieldChksum.length {
			c = ' '
		}
		unsigned += int64(c)
		signed += int64(int8(c))
	}
	return unsigned, signed
}

// DecodeHeader decodes a header block. Individual numeric fields that fail to parse decode as zero;
// bad timestamps, checksum mismatches (when verifying) and missing magic (when strict) fail the
// whole block with an InvalidArchive error.
func DecodeHeader(block []byte, opts *Options) (*Header, error) {
	if opts == nil {
		opts, _ = NewOptions()
	}
	if len(block) < HEADER_BYTE_SIZE {
		return nil, invalidArchive("", errors.Wrapf(ErrTruncated, "header block is %d bytes", len(block)))
	}

	h := &Header{
		Name:     fieldName.text(block),
		Typeflag: typeFlagFromByte(fieldTypeflag.slice(block)[0]),
		Linkname: fieldLinkname.text(block),
	}
	mode, _ := fieldMode.octal(block)
	h.Mode = uint16(mode & 0xffff)
	uid, _ := fieldUid.octal(block)
	h.Uid = uint32(uid)
	gid, _ := fieldGid.octal(block)
	h.Gid = uint32(gid)
	size, _ := fieldSize.octal(block)
	if size > 1<<62 {
		size = 0
	}
	h.Size = int64(size)
	chksum, _ := fieldChksum.octal(block)
	h.Chksum = uint32(chksum)

	var err error
	if h.ModTime, _, err = fieldModTime.timestamp(block); err != nil {
		return nil, invalidArchive(h.Name, errors.Wrap(err, "mtime"))
	}

	if opts.VerifyChecksum {
		unsigned, signed := ComputeChecksum(block)
		if int64(chksum) != unsigned && int64(chksum) != signed {
			return nil, invalidArchive(h.Name, errors.Wrapf(ErrChecksum, "stored %o, computed %o", chksum, unsigned))
		}
	}

	rawMagic := string(fieldMagic.slice(block))
	magic := strings.TrimRight(fieldMagic.text(block), " ")
	if magic == "" {
		if opts.StrictMagic {
			return nil, invalidArchive(h.Name, errors.Wrap(ErrMagic, "missing magic"))
		}
		return h, nil
	}
	if opts.StrictMagic && magic != MAGIC {
		return nil, invalidArchive(h.Name, errors.Wrapf(ErrMagic, "got %q", magic))
	}

	h.Magic = stringPtr(magic)
	h.Version = stringPtr(fieldVersion.text(block))
	h.Uname = stringPtr(fieldUname.text(block))
	h.Gname = stringPtr(fieldGname.text(block))
	devmajor, _ := fieldDevmajor.octal(block)
	h.Devmajor = uint32Ptr(uint32(devmajor))
	devminor, _ := fieldDevminor.octal(block)
	h.Devminor = uint32Ptr(uint32(devminor))

	switch {
	case rawMagic == magicGNU:
		if h.AccessTime, err = optionalTime(fieldGNUAtime, block); err != nil {
			return nil, invalidArchive(h.Name, errors.Wrap(err, "atime"))
		}
		if h.ChangeTime, err = optionalTime(fieldGNUCtime, block); err != nil {
			return nil, invalidArchive(h.Name, errors.Wrap(err, "ctime"))
		}
	case string(fieldStarTrailer.slice(block)) == trailerSTAR:
		h.Prefix = stringPtr(fieldStarPrefix.text(block))
		if h.AccessTime, err = optionalTime(fieldStarAtime, block); err != nil {
			return nil, invalidArchive(h.Name, errors.Wrap(err, "atime"))
		}
		if h.ChangeTime, err = optionalTime(fieldStarCtime, block); err != nil {
			return nil, invalidArchive(h.Name, errors.Wrap(err, "ctime"))
		}
	default:
		h.Prefix = stringPtr(fieldPrefix.text(block))
	}
	if h.Prefix != nil && *h.Prefix != "" {
		h.Name = *h.Prefix + "/" + h.Name
	}
	return h, nil
}

func optionalTime(f field, block []byte) (*time.Time, error) {
	t, ok, err := f.timestamp(block)
	if err != nil || !ok {
		return nil, err
	}
	return &t, nil
}

// formatter writes header fields, keeping the first error it runs into.
type formatter struct {
	err error
}

// octal writes n as zero padded octal digits followed by a NUL, filling b.
func (f *formatter) octal(b []byte, n uint64) {
	if f.err != nil {
		return
	}
	s := strconv.FormatUint(n, 8)
	width := len(b) - 1
	if len(s) > width {
		f.err = errors.Errorf("value %d does not fit in %d octal digits", n, width)
		return
	}
	copy(b, strings.Repeat("0", width-len(s))+s)
	b[width] = 0
}

func (f *formatter) string(b []byte, s string) {
	if f.err != nil {
		return
	}
	if len(s) > len(b) {
		f.err = errors.Wrapf(ErrNameTooLong, "%q is longer than %d bytes", s, len(b))
		return
	}
	copy(b, s)
}

// splitName splits a name that does not fit the name field into ustar prefix and name parts at a
// slash.
func splitName(name string) (prefix, rest string, err error) {
	if len(name) <= fieldName.length {
		return "", name, nil
	}
	i := len(name) - 1
	if name[i] == '/' {
		i--
	}
	for ; i > 0; i-- {
		if name[i] != '/' {
			continue
		}
		if len(name)-i-1 > fieldName.length {
			break
		}
		if i <= fieldPrefix.length {
			return name[:i], name[i+1:], nil
		}
	}
	return "", "", errors.Wrapf(ErrNameTooLong, "%q", name)
}

// Encode renders the header as a ustar block with a freshly computed checksum. Access and change
// times are not part of the ustar layout and are not written.
func (h *Header) Encode() ([]byte, error) {
	if h.Size < 0 {
		return nil, operationError(h.Name, errors.Errorf("negative size %d", h.Size))
	}
	prefix, name, err := splitName(h.Name)
	if err != nil {
		return nil, operationError(h.Name, err)
	}
	var devmajor, devminor uint32
	if h.Devmajor != nil {
		devmajor = *h.Devmajor
	}
	if h.Devminor != nil {
		devminor = *h.Devminor
	}
	mtime := h.ModTime.Unix()
	if mtime < 0 {
		mtime = 0
	}

	block := make([]byte, HEADER_BYTE_SIZE)
	s := slicer(block)
	var f formatter
	f.string(s.next(fieldName.length), name)
	f.octal(s.next(fieldMode.length), uint64(h.Mode))
	f.octal(s.next(fieldUid.length), uint64(h.Uid))
	f.octal(s.next(fieldGid.length), uint64(h.Gid))
	f.octal(s.next(fieldSize.length), uint64(h.Size))
	f.octal(s.next(fieldModTime.length), uint64(mtime))
	f.string(s.next(fieldChksum.length), "        ")
	f.string(s.next(fieldTypeflag.length), string(h.Typeflag.Byte()))
	f.string(s.next(fieldLinkname.length), h.Linkname)
	f.string(s.next(fieldMagic.length), magicUSTAR)
	f.string(s.next(fieldVersion.length), VERSION)
	f.string(s.next(fieldUname.length), truncate(h.Username(), fieldUname.length))
	f.string(s.next(fieldGname.length), truncate(h.Groupname(), fieldGname.length))
	f.octal(s.next(fieldDevmajor.length), uint64(devmajor))
	f.octal(s.next(fieldDevminor.length), uint64(devminor))
	f.string(s.next(fieldPrefix.length), prefix)
	if f.err != nil {
		return nil, operationError(h.Name, f.err)
	}

	// The checksum field is terminated by a NUL then a space.
	chksum, _ := ComputeChecksum(block)
	sum := fieldChksum.slice(block)
	f.octal(sum[:7], uint64(chksum))
	sum[7] = ' '
	return block, f.err
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
