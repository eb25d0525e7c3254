package ustar

import (
	"path/filepath"
	"strings"
)

// NormalizePath turns a filesystem path into a member name. Relative paths are kept as they are
// (with forward slashes) apart from a leading run of ".." components. Absolute paths lose their
// volume, root and every ".." component. count is the number of components removed and stripped
// is the leading text that was dropped, for the "Removing leading" notice.
func NormalizePath(p string) (name, stripped string, count int) {
	vol := filepath.VolumeName(p)
	if !filepath.IsAbs(p) && vol == "" {
		name = filepath.ToSlash(p)
		for name == ".." || strings.HasPrefix(name, "../") {
			count++
			stripped += "../"
			name = strings.TrimLeft(name[2:], "/")
		}
		return name, stripped, count
	}

	rest := filepath.ToSlash(p[len(vol):])
	trimmed := strings.TrimLeft(rest, "/")
	lead := vol + rest[:len(rest)-len(trimmed)]
	if lead != "" {
		count = 1
	}

	var kept []string
	for _, c := range strings.Split(trimmed, "/") {
		switch c {
		case "", ".":
		case "..":
			count++
			if len(kept) == 0 {
				lead += "../"
			}
		default:
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, "/"), lead, count
}
