// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package sidecar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// dirWatch waits for one named entry to appear in a directory,
// observing IN_CREATE and IN_MOVED_TO via inotify. The compositor
// startup path uses it to catch the Wayland socket the moment
// gamescope binds it.
//
// Callers must stat the target AFTER constructing the watch, not
// before: an entry created between an existence check and the watch
// setup would otherwise be missed, whereas check-after-watch catches
// it either way.
type dirWatch struct {
	fd      int
	name    string
	created chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func newDirWatch(directory, name string) (*dirWatch, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	if _, err := unix.InotifyAddWatch(fd, directory, unix.IN_CREATE|unix.IN_MOVED_TO); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch on %s: %w", directory, err)
	}

	watch := &dirWatch{
		fd:      fd,
		name:    name,
		created: make(chan struct{}),
		stop:    make(chan struct{}),
	}
	go watch.run()
	return watch, nil
}

// Created returns a channel that closes once the entry appears.
func (w *dirWatch) Created() <-chan struct{} { return w.created }

// Close stops the watch and releases the inotify descriptor. Safe to
// call more than once, fired or not.
func (w *dirWatch) Close() {
	w.once.Do(func() { close(w.stop) })
}

// run polls the inotify descriptor until the entry appears or the
// watch is closed. poll(2) with a 100ms timeout keeps the goroutine
// responsive to Close without spinning.
func (w *dirWatch) run() {
	defer unix.Close(w.fd)

	buffer := make([]byte, 4096)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		descriptors := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		count, err := unix.Poll(descriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if count == 0 {
			continue
		}

		read, err := unix.Read(w.fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}
		for _, name := range inotifyEventNames(buffer[:read]) {
			if name == w.name {
				close(w.created)
				return
			}
		}
	}
}

// inotifyEventNames decodes the entry names from a raw inotify event
// buffer. Layout per inotify(7): wd, mask, cookie, len, then len
// bytes of null-padded name; events without a name (len 0) carry no
// entry and are skipped.
func inotifyEventNames(buffer []byte) []string {
	var names []string
	for len(buffer) >= unix.SizeofInotifyEvent {
		nameLength := int(binary.NativeEndian.Uint32(buffer[12:16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if eventSize > len(buffer) {
			break
		}
		if nameLength > 0 {
			raw := buffer[unix.SizeofInotifyEvent:eventSize]
			if i := bytes.IndexByte(raw, 0); i >= 0 {
				raw = raw[:i]
			}
			names = append(names, string(raw))
		}
		buffer = buffer[eventSize:]
	}
	return names
}
