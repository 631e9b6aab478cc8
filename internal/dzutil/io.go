// Package dzutil holds small filesystem helpers shared by the job executors.
package dzutil

import (
	"io"
	"os"
)

// cancelAwareReader wraps an io.Reader and returns io.EOF early once cancelled
// reports true, so a copy loop can abort between chunks without plumbing a
// context through io.Copy.
type cancelAwareReader struct {
	r         io.Reader
	cancelled func() bool
}

func (c *cancelAwareReader) Read(p []byte) (int, error) {
	if c.cancelled() {
		return 0, io.EOF
	}
	return c.r.Read(p)
}

// CopyFile copies the file at `from` to the path `to`, creating `to` with the
// given permissions. If cancelled ever returns true, the copy stops early and
// CopyFile reports ErrCancelledMidCopy so the caller can remove the partial
// destination file.
func CopyFile(from, to string, mode os.FileMode, cancelled func() bool) error {
	fromFile, err := os.Open(from)
	if err != nil {
		return err
	}
	defer fromFile.Close()

	toFile, err := os.OpenFile(to, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer toFile.Close()

	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	reader := &cancelAwareReader{r: fromFile, cancelled: cancelled}
	if _, err := io.CopyBuffer(toFile, reader, make([]byte, 32*1024)); err != nil {
		return err
	}

	if cancelled() {
		return ErrCancelledMidCopy
	}
	return nil
}

// RemoveIfExists removes path, treating an already-absent file as success.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// ErrCancelledMidCopy is returned by CopyFile when the cancellation callback
// fired before the copy finished.
var ErrCancelledMidCopy = errCancelledMidCopy{}

type errCancelledMidCopy struct{}

func (errCancelledMidCopy) Error() string { return "copy cancelled before completion" }
