//go:build cgo && (linux || darwin)

package sem

/*
#cgo linux LDFLAGS: -pthread
#include <errno.h>
#include <fcntl.h>
#include <semaphore.h>
#include <stdlib.h>
#include <time.h>
#include <unistd.h>

static sem_t *nsoran_sem_open(const char *name, unsigned int value) {
	sem_t *s = sem_open(name, O_CREAT, 0644, value);
	if (s == SEM_FAILED) {
		return NULL;
	}
	return s;
}

static int nsoran_sem_wait(sem_t *s) {
	int rc;
	do {
		rc = sem_wait(s);
	} while (rc == -1 && errno == EINTR);
	return rc;
}

#ifdef __APPLE__
// No sem_timedwait on darwin: poll with a short sleep.
static int nsoran_sem_timedwait(sem_t *s, long long ns) {
	struct timespec step = {0, 1000000};
	for (;;) {
		if (sem_trywait(s) == 0) {
			return 0;
		}
		if (errno != EAGAIN && errno != EINTR) {
			return -1;
		}
		if (ns <= 0) {
			errno = ETIMEDOUT;
			return -1;
		}
		nanosleep(&step, NULL);
		ns -= 1000000;
	}
}
#else
static int nsoran_sem_timedwait(sem_t *s, long long ns) {
	struct timespec ts;
	clock_gettime(CLOCK_REALTIME, &ts);
	ts.tv_sec += ns / 1000000000LL;
	ts.tv_nsec += ns % 1000000000LL;
	if (ts.tv_nsec >= 1000000000L) {
		ts.tv_sec++;
		ts.tv_nsec -= 1000000000L;
	}
	int rc;
	do {
		rc = sem_timedwait(s, &ts);
	} while (rc == -1 && errno == EINTR);
	return rc;
}
#endif
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/spachava753/nsoran/internal/models"
)

// Named is a POSIX named counting semaphore shared with other processes.
type Named struct {
	name string

	mu  sync.Mutex
	ptr *C.sem_t
}

// Open opens the named semaphore, creating it with the given initial count
// when it does not exist yet.
func Open(name string, value uint) (*Named, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	ptr, err := C.nsoran_sem_open(cname, C.uint(value))
	if ptr == nil {
		return nil, fmt.Errorf("sem_open %s: %w", name, err)
	}
	return &Named{name: name, ptr: ptr}, nil
}

// Name returns the semaphore name.
func (s *Named) Name() string {
	return s.name
}

func (s *Named) handle() (*C.sem_t, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ptr == nil {
		return nil, fmt.Errorf("semaphore %s: %w", s.name, ErrClosed)
	}
	return s.ptr, nil
}

// Post increments the semaphore.
func (s *Named) Post() error {
	ptr, err := s.handle()
	if err != nil {
		return err
	}
	if rc, err := C.sem_post(ptr); rc != 0 {
		return fmt.Errorf("sem_post %s: %w", s.name, err)
	}
	return nil
}

// Wait decrements the semaphore, blocking until that is possible.
func (s *Named) Wait() error {
	ptr, err := s.handle()
	if err != nil {
		return err
	}
	if rc, err := C.nsoran_sem_wait(ptr); rc != 0 {
		return fmt.Errorf("sem_wait %s: %w", s.name, err)
	}
	return nil
}

// TimedWait decrements the semaphore, giving up after d with
// models.ErrSynchronizationTimeout.
func (s *Named) TimedWait(d time.Duration) error {
	ptr, err := s.handle()
	if err != nil {
		return err
	}
	rc, err := C.nsoran_sem_timedwait(ptr, C.longlong(d.Nanoseconds()))
	if rc == 0 {
		return nil
	}
	if errors.Is(err, unix.ETIMEDOUT) {
		return models.ErrSynchronizationTimeout
	}
	return fmt.Errorf("sem_timedwait %s: %w", s.name, err)
}

// Close releases this process's handle on the semaphore. The name stays
// registered until Unlink.
func (s *Named) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ptr == nil {
		return nil
	}
	rc, err := C.sem_close(s.ptr)
	s.ptr = nil
	if rc != 0 {
		return fmt.Errorf("sem_close %s: %w", s.name, err)
	}
	return nil
}

// Unlink removes the semaphore name from the system. A name that is already
// gone is not an error.
func Unlink(name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	if rc, err := C.sem_unlink(cname); rc != 0 && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("sem_unlink %s: %w", name, err)
	}
	return nil
}
