//go:build !unix

package fileops

import (
	"errors"
	"os"
)

func isCrossDevice(err error) bool {
	// Windows reports cross-volume renames as generic link errors.
	var linkErr *os.LinkError
	return errors.As(err, &linkErr)
}
