//go:build !unix

package fsutil

import "github.com/pkg/errors"

func linkInfo(path string) (LinkInfo, error) {
	return LinkInfo{}, errors.New("hard link identity is not supported on this platform")
}
