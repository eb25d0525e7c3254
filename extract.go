package ustar

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/containerd/log"
	"github.com/hashicorp/go-multierror"
	"github.com/moby/sys/sequential"
	"github.com/pkg/errors"
)

// ImpliedDirectoryMode is used for parent directories that the archive does not list itself.
const ImpliedDirectoryMode = 0o755

type extractor struct {
	ctx     context.Context
	opts    *Options
	archive string

	// src is the open archive; file members are copied from it by offset.
	src io.ReaderAt
}

type extractJob struct {
	member Member
	target string
}

// Extract unpacks the archive at archivePath into the destination directory (the current
// directory by default). The whole archive is scanned before anything is written, so a corrupt
// header means nothing is extracted. Existing files are overwritten.
func Extract(ctx context.Context, archivePath string, opts ...Option) error {
	o, err := NewOptions(opts...)
	if err != nil {
		return err
	}
	f, err := sequential.Open(archivePath)
	if err != nil {
		return osError(archivePath, err, "cannot open archive")
	}
	defer f.Close()

	archive, err := scan(archivePath, f, o)
	if err != nil {
		return err
	}
	if !archive.Terminated() {
		log.G(ctx).WithField("archive", archivePath).Debug("archive has no end-of-archive trailer")
	}

	x := &extractor{ctx: ctx, opts: o, archive: archivePath, src: f}
	return x.extractAll(archive.Members())
}

func (x *extractor) extractAll(members []Member) error {
	var jobs []extractJob
	queued := map[string]int{}

	for _, m := range members {
		if err := x.ctx.Err(); err != nil {
			return err
		}
		hdr := m.Header
		target, err := x.target(hdr.Name)
		if errors.Is(err, ErrUnsafePath) {
			log.G(x.ctx).WithField("member", hdr.Name).Warn("member path escapes destination; skipping")
			continue
		}
		if err != nil {
			return err
		}
		if x.opts.Verbose {
			fmt.Fprintln(x.opts.Output, hdr.Name)
		}
		if target == "" {
			continue
		}
		if err := x.ensureParent(target); err != nil {
			return err
		}

		switch {
		case hdr.Typeflag == Directory || (hdr.Typeflag == Normal && strings.HasSuffix(hdr.Name, "/")):
			if err := x.mkdir(target); err != nil {
				return err
			}
		case hdr.Typeflag.HasData():
			job := extractJob{member: m, target: target}
			if x.opts.Workers <= 1 {
				if err := x.extractFile(job); err != nil {
					return err
				}
				continue
			}
			// A later member with the same name replaces an earlier one.
			if i, ok := queued[target]; ok {
				jobs[i] = job
				continue
			}
			queued[target] = len(jobs)
			jobs = append(jobs, job)
		default:
			log.G(x.ctx).WithFields(log.Fields{"member": hdr.Name, "type": hdr.Typeflag}).Warn("member type not supported; skipping")
		}
	}
	return x.extractParallel(jobs)
}

// target maps a member name to a path under the destination. Absolute names lose their root; a
// relative name that climbs out of the destination is refused.
func (x *extractor) target(name string) (string, error) {
	rel := filepath.FromSlash(name)
	if strings.HasPrefix(name, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		rel, _, _ = NormalizePath(rel)
		rel = filepath.FromSlash(rel)
	}
	rel = filepath.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", operationError(name, ErrUnsafePath)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.Join(x.opts.Destination, rel), nil
}

// ensureParent creates any missing parent directories of target, so members may appear before the
// directories that contain them.
func (x *extractor) ensureParent(target string) error {
	parent := filepath.Dir(target)
	if _, err := os.Lstat(parent); err == nil {
		return nil
	}
	return osError(parent, os.MkdirAll(parent, ImpliedDirectoryMode), "cannot create directory")
}

func (x *extractor) mkdir(target string) error {
	if fi, err := os.Lstat(target); err == nil && fi.IsDir() {
		return nil
	}
	return osError(target, os.Mkdir(target, ImpliedDirectoryMode), "cannot create directory")
}

// extractFile copies exactly the member's data into target, replacing whatever was there.
func (x *extractor) extractFile(job extractJob) (err error) {
	hdr := job.member.Header
	if fi, err := os.Lstat(job.target); err == nil && !fi.Mode().IsRegular() {
		if err := os.Remove(job.target); err != nil {
			return osError(job.target, err, "cannot replace")
		}
	}

	out, err := sequential.OpenFile(job.target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return osError(job.target, err, "cannot create")
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = osError(job.target, cerr, "cannot close")
		}
	}()

	data := io.NewSectionReader(x.src, job.member.DataStart, hdr.Size)
	n, err := io.Copy(out, data)
	if err != nil {
		return osError(job.target, err, "cannot write")
	}
	if n != hdr.Size {
		return invalidArchive(x.archive, errors.Wrapf(ErrTruncated, "%q has %d of %d bytes", hdr.Name, n, hdr.Size))
	}
	log.G(x.ctx).WithFields(log.Fields{"member": hdr.Name, "bytes": n}).Debug("extracted")
	return nil
}

// extractParallel copies file members using the configured number of workers. Every failure is
// collected rather than stopping at the first.
func (x *extractor) extractParallel(jobs []extractJob) error {
	if len(jobs) == 0 {
		return nil
	}
	ch := make(chan extractJob)
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for i := 0; i < x.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range ch {
				if err := x.extractFile(job); err != nil {
					mu.Lock()
					result = multierror.Append(result, err)
					mu.Unlock()
				}
			}
		}()
	}
	for _, job := range jobs {
		ch <- job
	}
	close(ch)
	wg.Wait()
	return result.ErrorOrNil()
}
