//go:build linux

package spidev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/danmuck/spilink/internal/hal"
	"github.com/danmuck/spilink/internal/observability"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Line is a sysfs GPIO input with rising-edge notification via epoll.
type Line struct {
	root     string
	dir      string
	pin      int
	label    string
	exported bool
	logger   zerolog.Logger

	mu      sync.Mutex
	watcher *edgeWatcher
	closed  bool
}

var _ hal.Line = (*Line)(nil)

func (p *Platform) RequestLine(pin int, label string) (hal.Line, error) {
	if pin < 0 {
		return nil, fmt.Errorf("spidev: invalid gpio %d", pin)
	}
	l := &Line{
		root:   p.sysfsGPIO(),
		dir:    p.linePath(pin),
		pin:    pin,
		label:  label,
		logger: observability.Component("gpio").With().Int("pin", pin).Str("label", label).Logger(),
	}
	if _, err := os.Stat(l.dir); errors.Is(err, os.ErrNotExist) {
		if err := writeAttr(filepath.Join(l.root, "export"), strconv.Itoa(pin)); err != nil {
			return nil, fmt.Errorf("spidev: export gpio %d: %w", pin, err)
		}
		l.exported = true
	} else if err != nil {
		return nil, fmt.Errorf("spidev: stat gpio %d: %w", pin, err)
	}
	l.logger.Debug().Bool("exported", l.exported).Msg("gpio_requested")
	return l, nil
}

func (l *Line) Input() error {
	if err := writeAttr(filepath.Join(l.dir, "direction"), "in"); err != nil {
		return fmt.Errorf("spidev: gpio %d direction: %w", l.pin, err)
	}
	return nil
}

func (l *Line) OnRisingEdge(fn func()) (io.Closer, error) {
	if fn == nil {
		return nil, errors.New("spidev: nil edge handler")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if l.watcher != nil {
		return nil, fmt.Errorf("spidev: gpio %d already has an edge handler", l.pin)
	}
	if err := writeAttr(filepath.Join(l.dir, "edge"), "rising"); err != nil {
		return nil, fmt.Errorf("spidev: gpio %d edge: %w", l.pin, err)
	}
	w, err := newEdgeWatcher(filepath.Join(l.dir, "value"), fn, l.logger)
	if err != nil {
		return nil, fmt.Errorf("spidev: gpio %d watch: %w", l.pin, err)
	}
	l.watcher = w
	go w.run()
	return closerFunc(func() error {
		l.mu.Lock()
		cur := l.watcher
		if cur == w {
			l.watcher = nil
		}
		l.mu.Unlock()
		if cur != w {
			return nil
		}
		return w.stop()
	}), nil
}

func (l *Line) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	w := l.watcher
	l.watcher = nil
	l.mu.Unlock()

	var errs []error
	if w != nil {
		errs = append(errs, w.stop())
	}
	if err := writeAttr(filepath.Join(l.dir, "edge"), "none"); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Debug().Err(err).Msg("gpio_edge_reset_failed")
	}
	if l.exported {
		errs = append(errs, writeAttr(filepath.Join(l.root, "unexport"), strconv.Itoa(l.pin)))
	}
	return errors.Join(errs...)
}

// edgeWatcher waits for EPOLLPRI on a sysfs value file. An eventfd wakes it
// for shutdown.
type edgeWatcher struct {
	epfd    int
	valueFD int
	wakeFD  int
	fn      func()
	logger  zerolog.Logger
	done    chan struct{}
	once    sync.Once
}

func newEdgeWatcher(valuePath string, fn func(), logger zerolog.Logger) (*edgeWatcher, error) {
	valueFD, err := unix.Open(valuePath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	// clear the level latched before registration
	var buf [8]byte
	_, _ = unix.Read(valueFD, buf[:])

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(valueFD)
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		unix.Close(valueFD)
		return nil, err
	}
	w := &edgeWatcher{
		epfd:    epfd,
		valueFD: valueFD,
		wakeFD:  wakeFD,
		fn:      fn,
		logger:  logger,
		done:    make(chan struct{}),
	}
	if err := w.add(valueFD, unix.EPOLLPRI|unix.EPOLLERR); err != nil {
		w.closeFDs()
		return nil, err
	}
	if err := w.add(wakeFD, unix.EPOLLIN); err != nil {
		w.closeFDs()
		return nil, err
	}
	return w, nil
}

func (w *edgeWatcher) add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(w.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (w *edgeWatcher) run() {
	defer close(w.done)
	events := make([]unix.EpollEvent, 2)
	var buf [8]byte
	for {
		n, err := unix.EpollWait(w.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			w.logger.Error().Err(err).Msg("gpio_poll_failed")
			return
		}
		for i := 0; i < n; i++ {
			switch int(events[i].Fd) {
			case w.wakeFD:
				return
			case w.valueFD:
				if _, err := unix.Seek(w.valueFD, 0, 0); err != nil {
					w.logger.Warn().Err(err).Msg("gpio_rewind_failed")
					continue
				}
				if _, err := unix.Read(w.valueFD, buf[:]); err != nil {
					w.logger.Warn().Err(err).Msg("gpio_read_failed")
					continue
				}
				w.fn()
			}
		}
	}
}

// stop wakes the poll loop, waits for a handler call in progress and
// releases the descriptors. If the wake cannot be delivered the loop is left
// running with its descriptors open rather than blocking the caller.
func (w *edgeWatcher) stop() error {
	var err error
	w.once.Do(func() {
		var one [8]byte
		one[0] = 1
		if _, werr := unix.Write(w.wakeFD, one[:]); werr != nil {
			w.logger.Error().Err(werr).Msg("gpio_watcher_wake_failed")
			err = fmt.Errorf("spidev: wake edge watcher: %w", werr)
			return
		}
		<-w.done
		w.closeFDs()
	})
	return err
}

func (w *edgeWatcher) closeFDs() {
	unix.Close(w.wakeFD)
	unix.Close(w.epfd)
	unix.Close(w.valueFD)
}

func writeAttr(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
