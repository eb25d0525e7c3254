//go:build !unix

package ustar

import (
	"io/fs"
)

func statHeader(hdr *Header, fi fs.FileInfo) {}
