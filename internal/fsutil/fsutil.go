// Package fsutil provides the filesystem identity checks required before
// hard-linking: whether two paths already share storage, and whether they
// live on the same filesystem at all.
package fsutil

// FileID identifies the underlying storage object behind a path. Two paths
// with the same FileID are hard links to the same content.
type FileID struct {
	Device uint64
	Inode  uint64
}

// LinkInfo describes the link identity of one path.
type LinkInfo struct {
	ID    FileID
	Nlink uint64
}

// Stat returns the link identity of the file at path.
func Stat(path string) (LinkInfo, error) {
	return linkInfo(path)
}

// SameFile reports whether the two paths resolve to the same underlying
// storage object (already hard-linked to each other).
func SameFile(a, b string) (bool, error) {
	ia, err := linkInfo(a)
	if err != nil {
		return false, err
	}
	ib, err := linkInfo(b)
	if err != nil {
		return false, err
	}
	return ia.ID == ib.ID, nil
}

// SameFilesystem reports whether both paths are on the same filesystem.
// Hard links cannot span filesystems, so this is checked before linking.
func SameFilesystem(a, b string) (bool, error) {
	ia, err := linkInfo(a)
	if err != nil {
		return false, err
	}
	ib, err := linkInfo(b)
	if err != nil {
		return false, err
	}
	return ia.ID.Device == ib.ID.Device, nil
}
