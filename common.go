package ustar

import (
	"time"
)

const (
	HEADER_BYTE_SIZE   = 512
	DEFAULT_BLOCK_SIZE = 512

	MAGIC   = "ustar"
	VERSION = "00"

	// trailerSTAR marks the Schily "star" layout, which shortens the prefix
	// field to 131 bytes to make room for atime and ctime.
	trailerSTAR = "tar\x00"
)

// TypeFlag identifies the kind of an archive member.
type TypeFlag int

const (
	Normal TypeFlag = iota
	HardLink
	SymbolicLink
	CharacterSpecial
	BlockSpecial
	Directory
	FIFO
	Contiguous

	// ExtendedHeader carries records that apply to the next member only.
	ExtendedHeader

	// ExtendedNext carries records that apply to every following member.
	ExtendedNext
)

var typeFlagNames = map[TypeFlag]string{
	Normal:           "Normal",
	HardLink:         "HardLink",
	SymbolicLink:     "SymbolicLink",
	CharacterSpecial: "CharacterSpecial",
	BlockSpecial:     "BlockSpecial",
	Directory:        "Directory",
	FIFO:             "FIFO",
	Contiguous:       "Contiguous",
	ExtendedHeader:   "ExtendedHeader",
	ExtendedNext:     "ExtendedNext",
}

func (t TypeFlag) String() string {
	if s, ok := typeFlagNames[t]; ok {
		return s
	}
	return "Normal"
}

// Byte returns the on-disk typeflag character.
func (t TypeFlag) Byte() byte {
	switch t {
	case ExtendedHeader:
		return 'x'
	case ExtendedNext:
		return 'g'
	}
	if t < Normal || t > Contiguous {
		return '0'
	}
	return byte('0' + t)
}

func typeFlagFromByte(b byte) TypeFlag {
	switch {
	case b >= '0' && b <= '7':
		return TypeFlag(b - '0')
	case b == 'x':
		return ExtendedHeader
	case b == 'g':
		return ExtendedNext
	}
	// Pre-POSIX archives use NUL for regular files; anything unknown is
	// treated the same way.
	return Normal
}

// HasData reports whether members of this type carry a data region that
// should be unpacked as file content.
func (t TypeFlag) HasData() bool {
	return t == Normal || t == Contiguous
}

// Header is the metadata of one archive member. Optional fields are nil when
// the block did not carry them.
type Header struct {
	Name     string
	Mode     uint16
	Uid      uint32
	Gid      uint32
	Size     int64
	ModTime  time.Time
	Chksum   uint32
	Typeflag TypeFlag
	Linkname string

	Magic    *string
	Version  *string
	Uname    *string
	Gname    *string
	Devmajor *uint32
	Devminor *uint32

	// Prefix is the ustar (155 byte) or star (131 byte) name prefix. Name
	// already has it joined in after decoding.
	Prefix *string

	AccessTime *time.Time
	ChangeTime *time.Time
}

// Username returns Uname, or an empty string if it was not recorded.
func (h *Header) Username() string {
	if h.Uname == nil {
		return ""
	}
	return *h.Uname
}

// Groupname returns Gname, or an empty string if it was not recorded.
func (h *Header) Groupname() string {
	if h.Gname == nil {
		return ""
	}
	return *h.Gname
}

func stringPtr(s string) *string { return &s }

func uint32Ptr(n uint32) *uint32 { return &n }

// roundUp rounds n up to the next multiple of blockSize.
func roundUp(n, blockSize int64) int64 {
	if r := n % blockSize; r != 0 {
		return n + blockSize - r
	}
	return n
}

// blockPadding is the number of NUL bytes that follow n bytes of data.
func blockPadding(n, blockSize int64) int64 {
	return roundUp(n, blockSize) - n
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

type slicer []byte

func (sp *slicer) next(n int) (b []byte) {
	s := *sp
	b, *sp = s[0:n], s[n:]
	return
}
