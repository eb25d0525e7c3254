package ustar

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/containerd/log"
)

// ownerSizeWidth is the minimum width of the "owner/group size" column in verbose listings.
const ownerSizeWidth = 19

// List prints the members of the archive at archivePath in archive order: names only, or long
// listing lines when verbose.
func List(ctx context.Context, archivePath string, opts ...Option) error {
	o, err := NewOptions(opts...)
	if err != nil {
		return err
	}
	archive, err := scanFile(archivePath, o)
	if err != nil {
		return err
	}
	if !archive.Terminated() {
		log.G(ctx).WithField("archive", archivePath).Debug("archive has no end-of-archive trailer")
	}
	for _, m := range archive.Members() {
		if _, err := fmt.Fprintln(o.Output, FormatMember(m.Header, o.Verbose)); err != nil {
			return osError("", err, "writing listing")
		}
	}
	return nil
}

// FormatMember renders one listing line, in the style of `tar -tv` when verbose:
//
//	-rw-r--r-- blake/staff      13 2013-02-18 03:17 hello.txt
func FormatMember(h *Header, verbose bool) string {
	if !verbose {
		return h.Name
	}
	owner, group := h.Username(), h.Groupname()
	if owner == "" || group == "" {
		owner, group = strconv.FormatUint(uint64(h.Uid), 10), strconv.FormatUint(uint64(h.Gid), 10)
	}
	size := strconv.FormatInt(h.Size, 10)
	if h.Typeflag == CharacterSpecial || h.Typeflag == BlockSpecial {
		var major, minor uint32
		if h.Devmajor != nil {
			major = *h.Devmajor
		}
		if h.Devminor != nil {
			minor = *h.Devminor
		}
		size = fmt.Sprintf("%d,%d", major, minor)
	}
	pad := ownerSizeWidth - (len(owner) + 1 + len(group) + 1 + len(size))
	if pad < 0 {
		pad = 0
	}

	line := fmt.Sprintf("%s %s/%s%s%s %s %s",
		FormatMode(h.Typeflag, h.Mode),
		owner, group, strings.Repeat(" ", pad+1), size,
		h.ModTime.Local().Format("2006-01-02 15:04"),
		h.Name)
	switch h.Typeflag {
	case SymbolicLink:
		line += " -> " + h.Linkname
	case HardLink:
		line += " link to " + h.Linkname
	}
	return line
}

// FormatMode renders a member's type and permission bits as ls does, e.g. "drwxr-xr-x".
func FormatMode(t TypeFlag, mode uint16) string {
	buf := []byte("----------")
	switch t {
	case Directory:
		buf[0] = 'd'
	case SymbolicLink:
		buf[0] = 'l'
	case HardLink:
		buf[0] = 'h'
	case CharacterSpecial:
		buf[0] = 'c'
	case BlockSpecial:
		buf[0] = 'b'
	case FIFO:
		buf[0] = 'p'
	case Contiguous:
		buf[0] = 'C'
	}
	const rwx = "rwx"
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			buf[1+i] = rwx[i%3]
		}
	}
	special := []struct {
		bit       uint16
		pos       int
		set, bare byte
	}{
		{0o4000, 3, 's', 'S'},
		{0o2000, 6, 's', 'S'},
		{0o1000, 9, 't', 'T'},
	}
	for _, s := range special {
		if mode&s.bit == 0 {
			continue
		}
		if buf[s.pos] == 'x' {
			buf[s.pos] = s.set
		} else {
			buf[s.pos] = s.bare
		}
	}
	return string(buf)
}
