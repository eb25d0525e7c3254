//go:build unix

package ustar

import (
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// statHeader fills in the ownership and device numbers that only the platform stat carries.
func statHeader(hdr *Header, fi fs.FileInfo) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	hdr.Uid = uint32(st.Uid)
	hdr.Gid = uint32(st.Gid)
	if fi.Mode()&os.ModeDevice != 0 {
		rdev := uint64(st.Rdev)
		hdr.Devmajor = uint32Ptr(unix.Major(rdev))
		hdr.Devminor = uint32Ptr(unix.Minor(rdev))
	}
}
