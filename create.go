package ustar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containerd/log"
	"github.com/google/uuid"
	"github.com/moby/sys/sequential"
	"github.com/pkg/errors"
)

// builder streams input paths into a Writer.
type builder struct {
	ctx  context.Context
	tw   *Writer
	opts *Options

	// skip holds the absolute paths of the archive being written, which must not archive itself.
	skip map[string]bool

	unames map[uint32]string
	gnames map[uint32]string
}

// Create writes a new archive at archivePath holding paths, in order, with directories recursed
// into. The archive is written to a temporary file next to archivePath and renamed into place
// once complete, so a failure leaves no partial archive behind.
func Create(ctx context.Context, archivePath string, paths []string, opts ...Option) error {
	if len(paths) == 0 {
		return operationError(archivePath, ErrEmptyFileList)
	}
	o, err := NewOptions(opts...)
	if err != nil {
		return err
	}

	tmpPath := filepath.Join(filepath.Dir(archivePath), fmt.Sprintf(".%s.%s.tmp", filepath.Base(archivePath), uuid.New()))
	f, err := sequential.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o666)
	if err != nil {
		return osError(archivePath, err, "cannot create archive")
	}
	logger := log.G(ctx).WithField("archive", archivePath)

	bw := bufio.NewWriter(f)
	b := &builder{
		ctx:    ctx,
		tw:     newWriter(bw, o),
		opts:   o,
		skip:   map[string]bool{},
		unames: map[uint32]string{},
		gnames: map[uint32]string{},
	}
	for _, p := range []string{tmpPath, archivePath} {
		if abs, err := filepath.Abs(p); err == nil {
			b.skip[abs] = true
		}
	}

	err = b.addAll(paths)
	if err == nil {
		err = b.tw.Close()
	}
	if err == nil {
		err = osError(archivePath, bw.Flush(), "writing archive")
	}
	if cerr := f.Close(); err == nil {
		err = osError(archivePath, cerr, "closing archive")
	}
	if err == nil {
		err = osError(archivePath, os.Rename(tmpPath, archivePath), "renaming %s", tmpPath)
	}
	if err != nil {
		if rerr := os.Remove(tmpPath); rerr != nil && !os.IsNotExist(rerr) {
			logger.WithError(rerr).Warn("cannot remove partial archive")
		}
		return err
	}
	logger.WithField("bytes", b.tw.Written()).Debug("archive created")
	return nil
}

func (b *builder) addAll(paths []string) error {
	for _, p := range paths {
		if err := b.ctx.Err(); err != nil {
			return err
		}
		if err := b.add(p); err != nil {
			return err
		}
	}
	return nil
}

// add archives one input path, recursing into directories in lexical order.
func (b *builder) add(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return osError(path, err, "cannot stat")
	}

	name, stripped, count := NormalizePath(path)
	if count > 0 {
		fmt.Fprintf(b.opts.Output, "tar: Removing leading `%s' from member names\n", stripped)
		log.G(b.ctx).WithFields(log.Fields{"path": path, "components": count}).Debug("stripped member name")
	}

	if !fi.IsDir() {
		return b.addEntry(path, name, fi)
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return osError(p, err, "cannot read directory")
		}
		if err := b.ctx.Err(); err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return osError(p, err, "cannot stat")
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return operationError(p, err)
		}
		member := name
		if rel != "." {
			member = joinMember(name, filepath.ToSlash(rel))
		}
		return b.addEntry(p, member, info)
	})
}

func joinMember(dir, rel string) string {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return rel
	}
	return dir + "/" + rel
}

// addEntry writes the header for one filesystem entry and, for regular files, its content.
func (b *builder) addEntry(path, name string, fi fs.FileInfo) error {
	if abs, err := filepath.Abs(path); err == nil && b.skip[abs] {
		log.G(b.ctx).WithField("path", path).Warn("file is the archive; not dumped")
		return nil
	}

	hdr := &Header{
		Name:    name,
		Mode:    headerMode(fi.Mode()),
		ModTime: fi.ModTime(),
	}
	statHeader(hdr, fi)

	mode := fi.Mode()
	switch {
	case mode.IsRegular():
		hdr.Typeflag = Normal
		hdr.Size = fi.Size()
	case mode.IsDir():
		hdr.Typeflag = Directory
		if name == "" {
			return nil
		}
		hdr.Name = strings.TrimSuffix(name, "/") + "/"
	case mode&os.ModeSymlink != 0:
		hdr.Typeflag = SymbolicLink
		target, err := os.Readlink(path)
		if err != nil {
			return osError(path, err, "cannot read link")
		}
		hdr.Linkname = filepath.ToSlash(target)
	case mode&os.ModeNamedPipe != 0:
		hdr.Typeflag = FIFO
	case mode&os.ModeCharDevice != 0:
		hdr.Typeflag = CharacterSpecial
	case mode&os.ModeDevice != 0:
		hdr.Typeflag = BlockSpecial
	default:
		log.G(b.ctx).WithField("path", path).Warn("socket ignored")
		return nil
	}
	hdr.Uname = stringPtr(b.uname(hdr.Uid))
	hdr.Gname = stringPtr(b.gname(hdr.Gid))

	if b.opts.Verbose {
		fmt.Fprintln(b.opts.Output, hdr.Name)
	}
	if err := b.tw.WriteHeader(hdr); err != nil {
		return osError(path, err, "cannot add %s", hdr.Name)
	}
	if hdr.Typeflag != Normal {
		return nil
	}

	f, err := sequential.Open(path)
	if err != nil {
		return osError(path, err, "cannot open")
	}
	defer f.Close()
	if _, err := io.Copy(b.tw, f); err != nil {
		if errors.Is(err, ErrWriteTooLong) {
			return operationError(path, errors.Wrap(err, "file changed as we read it"))
		}
		return osError(path, err, "cannot read")
	}
	if err := b.tw.Flush(); err != nil {
		return operationError(path, errors.Wrap(err, "file shrank as we read it"))
	}
	return nil
}

// headerMode keeps the permission, setuid, setgid and sticky bits of m in their Unix positions.
func headerMode(m fs.FileMode) uint16 {
	mode := uint16(m.Perm())
	if m&fs.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		mode |= 0o1000
	}
	return mode
}

func (b *builder) uname(uid uint32) string {
	if name, ok := b.unames[uid]; ok {
		return name
	}
	var name string
	if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
		name = u.Username
	}
	b.unames[uid] = name
	return name
}

func (b *builder) gname(gid uint32) string {
	if name, ok := b.gnames[gid]; ok {
		return name
	}
	var name string
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10)); err == nil {
		name = g.Name
	}
	b.gnames[gid] = name
	return name
}
