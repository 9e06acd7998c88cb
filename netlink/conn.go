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
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Connection owns one generic netlink socket for its entire lifetime. A
// single request/response transaction is in flight at a time; concurrent use
// requires external synchronization.
type Connection struct {
	// netlink socket
	fd int
	// cache pid to use in every netlink request.
	pid uint32
	// sequence number for netlink messages.
	seq  uint32
	addr syscall.SockaddrNetlink
	rbuf *bufio.Reader
}

func newConnection() (*Connection, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_GENERIC)
	if err != nil {
		return nil, openError(err)
	}
	conn := new(Connection)
	conn.fd = fd
	conn.seq = 0
	conn.pid = uint32(os.Getpid())
	conn.addr.Family = unix.AF_NETLINK
	conn.rbuf = bufio.NewReader(conn)

	err = unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
	if err != nil {
		unix.Close(fd)
		return nil, openError(err)
	}
	return conn, nil
}

func (c *Connection) Read(b []byte) (n int, err error) {
	n, _, err = unix.Recvfrom(c.fd, b, 0)
	return n, err
}

func (c *Connection) Write(b []byte) (n int, err error) {
	err = unix.Sendto(c.fd, b, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
	return len(b), err
}

func (c *Connection) Close() error {
	return unix.Close(c.fd)
}

// SetReadTimeout arranges for blocking reads to fail with EAGAIN after the
// given duration. A zero duration restores indefinite blocking.
func (c *Connection) SetReadTimeout(timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	return unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

// WriteMessage frames and sends one netlink message. The total length, the
// sequence number used for reply correlation and the port id are filled in
// here.
func (c *Connection) WriteMessage(msg syscall.NetlinkMessage) error {
	w := bytes.NewBuffer(nil)
	msg.Header.Len = uint32(syscall.NLMSG_HDRLEN + len(msg.Data))
	c.seq++
	msg.Header.Seq = c.seq
	msg.Header.Pid = c.pid
	err := binary.Write(w, Endian, msg.Header)
	if err != nil {
		return err
	}
	_, err = w.Write(msg.Data)
	if err != nil {
		return err
	}
	_, err = c.Write(w.Bytes())
	return err
}

// ReadMessage receives one netlink message. Multiple messages delivered in a
// single datagram are returned one at a time by consecutive calls.
func (c *Connection) ReadMessage() (msg syscall.NetlinkMessage, err error) {
	err = binary.Read(c.rbuf, Endian, &msg.Header)
	if err != nil {
		return msg, recvError(err)
	}
	if msg.Header.Len < syscall.NLMSG_HDRLEN {
		return msg, ErrMalformed
	}
	msg.Data = make([]byte, msg.Header.Len-syscall.NLMSG_HDRLEN)
	_, err = io.ReadFull(c.rbuf, msg.Data)
	return msg, recvError(err)
}
