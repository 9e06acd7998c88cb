// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netlink

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	// ErrPermissionDenied is returned when the process lacks the
	// capability (CAP_NET_ADMIN) required to talk to the taskstats
	// interface.
	ErrPermissionDenied = errors.New("taskstats: permission denied")

	// ErrUnsupported is returned when the host does not support generic
	// netlink sockets.
	ErrUnsupported = errors.New("taskstats: netlink not supported on this host")

	// ErrFamilyNotFound is returned when the kernel cannot resolve the
	// TASKSTATS generic netlink family, typically because the kernel was
	// built without CONFIG_TASKSTATS.
	ErrFamilyNotFound = errors.New("taskstats: family not found")

	// ErrNoSuchProcess is returned when the queried pid or tgid does not
	// exist.
	ErrNoSuchProcess = errors.New("taskstats: no such process")

	// ErrMalformed is returned when a kernel response violates the
	// expected netlink framing or attribute layout.
	ErrMalformed = errors.New("taskstats: malformed netlink response")

	// ErrTooLarge is returned when an attribute payload exceeds the
	// 16-bit netlink attribute length field.
	ErrTooLarge = errors.New("taskstats: attribute payload too large")

	// ErrTimeout is returned when a receive exceeded the deadline
	// configured with SetTimeout.
	ErrTimeout = errors.New("taskstats: receive timed out")

	// ErrLayoutMismatch is returned when the compiled-in taskstats field
	// offsets do not describe a valid struct layout for this
	// architecture. Decoding must not proceed past this error since every
	// field read would be silently corrupted.
	ErrLayoutMismatch = errors.New("taskstats: struct layout validation failed")
)

// KernelError is a netlink error frame reported by the kernel that does not
// map to one of the package's sentinel errors.
type KernelError struct {
	Errno syscall.Errno
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("taskstats: netlink request failed with %v (errno %d)", e.Errno, int(e.Errno))
}

// errnoError maps the errno carried by an NLMSG_ERROR frame to the package
// error taxonomy.
func errnoError(errno syscall.Errno) error {
	switch errno {
	case unix.ESRCH:
		return ErrNoSuchProcess
	case unix.EPERM, unix.EACCES:
		return ErrPermissionDenied
	default:
		return &KernelError{Errno: errno}
	}
}

// openError maps socket creation and bind failures to the package error
// taxonomy.
func openError(err error) error {
	switch {
	case errors.Is(err, unix.EPROTONOSUPPORT), errors.Is(err, unix.EAFNOSUPPORT), errors.Is(err, unix.ESOCKTNOSUPPORT):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}

// recvError maps receive failures to the package error taxonomy. A blocking
// read that exceeds the SO_RCVTIMEO deadline fails with EAGAIN.
func recvError(err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return ErrTimeout
	}
	return err
}
