//go:build unix

package fsutil

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

func linkInfo(path string) (LinkInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LinkInfo{}, err
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return LinkInfo{}, errors.Errorf("no stat information for %s", path)
	}

	return LinkInfo{
		ID: FileID{
			Device: uint64(stat.Dev),
			Inode:  uint64(stat.Ino),
		},
		Nlink: uint64(stat.Nlink),
	}, nil
}
