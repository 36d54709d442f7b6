//go:build !cgo || !(linux || darwin)

package sem

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("named semaphores require cgo on linux or darwin")

// Named is unavailable on this platform.
type Named struct{}

func Open(name string, value uint) (*Named, error) { return nil, errUnsupported }

func (s *Named) Name() string                    { return "" }
func (s *Named) Post() error                     { return errUnsupported }
func (s *Named) Wait() error                     { return errUnsupported }
func (s *Named) TimedWait(d time.Duration) error { return errUnsupported }
func (s *Named) Close() error                    { return nil }

func Unlink(name string) error { return errUnsupported }
