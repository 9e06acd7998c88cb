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
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/google/taskstats/info"
)

var (
	// Netlink is in host byte order. The layout validation in layout.go
	// refuses to run on architectures this table was not computed for, so
	// a wrong endianness here cannot decode silently.
	Endian = binary.LittleEndian
)

type genMsghdr struct {
	Command  uint8
	Version  uint8
	Reserved uint16
}

type netlinkMessage struct {
	Header    syscall.NlMsghdr
	GenHeader genMsghdr
	Data      []byte
}

func (m netlinkMessage) toRawMsg() (rawmsg syscall.NetlinkMessage) {
	rawmsg.Header = m.Header
	w := bytes.NewBuffer([]byte{})
	binary.Write(w, Endian, m.GenHeader)
	w.Write(m.Data)
	rawmsg.Data = w.Bytes()
	return rawmsg
}

// netlinkAttr is one decoded netlink attribute. Data is a copy of the value
// bytes without the attribute header or trailing padding, so it stays valid
// after the receive buffer is reused.
type netlinkAttr struct {
	Type uint16
	Data []byte
}

// Return required padding to align 'size' to 'alignment'.
func padding(size int, alignment int) int {
	unalignedPart := size % alignment
	return (alignment - unalignedPart) % alignment
}

// Append an attribute to the message. Adds attribute info (length and type),
// followed by the data and padding up to the next 4-byte boundary. Can be
// called multiple times to add attributes. String data is NUL-terminated on
// the wire per the kernel string attribute convention.
func addAttribute(buf *bytes.Buffer, attrType uint16, data interface{}, dataSize int) error {
	if dataSize > math.MaxUint16-syscall.NLA_HDRLEN {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, dataSize)
	}
	attr := syscall.RtAttr{
		Len:  syscall.NLA_HDRLEN,
		Type: attrType,
	}
	attr.Len += uint16(dataSize)
	binary.Write(buf, Endian, attr)
	switch data := data.(type) {
	case string:
		binary.Write(buf, Endian, []byte(data))
		buf.WriteByte(0) // terminate
	default:
		binary.Write(buf, Endian, data)
	}
	for i := 0; i < padding(int(attr.Len), syscall.NLMSG_ALIGNTO); i++ {
		buf.WriteByte(0)
	}
	return nil
}

// parseAttributes walks a buffer of netlink attributes from offset 0 until it
// is exhausted. The declared nla_len excludes padding; each attribute starts
// on a 4-byte boundary. Nested attribute values are returned as raw bytes and
// walked again by the caller that knows the attribute type nests.
func parseAttributes(buf []byte) ([]netlinkAttr, error) {
	var attrs []netlinkAttr
	for len(buf) > 0 {
		if len(buf) < syscall.NLA_HDRLEN {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(buf))
		}
		attrLen := int(Endian.Uint16(buf[0:2]))
		attrType := Endian.Uint16(buf[2:4])
		if attrLen < syscall.NLA_HDRLEN || attrLen > len(buf) {
			return nil, fmt.Errorf("%w: attribute length %d exceeds %d remaining bytes", ErrMalformed, attrLen, len(buf))
		}
		value := make([]byte, attrLen-syscall.NLA_HDRLEN)
		copy(value, buf[syscall.NLA_HDRLEN:attrLen])
		attrs = append(attrs, netlinkAttr{Type: attrType, Data: value})

		next := attrLen + padding(attrLen, syscall.NLMSG_ALIGNTO)
		if next > len(buf) {
			// Padding of the last attribute may be cut short.
			next = len(buf)
		}
		buf = buf[next:]
	}
	return attrs, nil
}

// Prepares the message and generic headers and appends attributes as data.
func prepareMessage(headerType uint16, cmd uint8, attributes []byte) (msg netlinkMessage) {
	msg.Header.Type = headerType
	msg.Header.Flags = syscall.NLM_F_REQUEST
	msg.GenHeader.Command = cmd
	msg.GenHeader.Version = 0x1
	msg.Data = attributes
	return msg
}

// Prepares message to query family id for taskstats.
func prepareFamilyMessage() (netlinkMessage, error) {
	buf := bytes.NewBuffer([]byte{})
	err := addAttribute(buf, unix.CTRL_ATTR_FAMILY_NAME, unix.TASKSTATS_GENL_NAME, len(unix.TASKSTATS_GENL_NAME)+1)
	if err != nil {
		return netlinkMessage{}, err
	}
	return prepareMessage(unix.GENL_ID_CTRL, unix.CTRL_CMD_GETFAMILY, buf.Bytes()), nil
}

// Prepares message to query task stats for a pid or tgid. attrType selects
// the target kind: TASKSTATS_CMD_ATTR_PID or TASKSTATS_CMD_ATTR_TGID.
func prepareStatsMessage(familyID uint16, attrType uint16, id uint32) (netlinkMessage, error) {
	buf := bytes.NewBuffer([]byte{})
	err := addAttribute(buf, attrType, id, 4)
	if err != nil {
		return netlinkMessage{}, err
	}
	return prepareMessage(familyID, unix.TASKSTATS_CMD_GET, buf.Bytes()), nil
}

// Verify and return any error reported by the kernel.
func verifyHeader(msg syscall.NetlinkMessage) error {
	switch msg.Header.Type {
	case syscall.NLMSG_DONE:
		return fmt.Errorf("%w: expected a response, got done marker", ErrMalformed)
	case syscall.NLMSG_ERROR:
		buf := bytes.NewBuffer(msg.Data)
		var errno int32
		err := binary.Read(buf, Endian, &errno)
		if err != nil {
			return fmt.Errorf("%w: truncated error frame", ErrMalformed)
		}
		if errno == 0 {
			// An ack; we never request one.
			return fmt.Errorf("%w: unexpected netlink ack", ErrMalformed)
		}
		return errnoError(syscall.Errno(-errno))
	}
	return nil
}

// genPayload strips the generic netlink header from a response and returns
// the attribute stream behind it.
func genPayload(msg syscall.NetlinkMessage) ([]byte, error) {
	if len(msg.Data) < unix.GENL_HDRLEN {
		return nil, fmt.Errorf("%w: response shorter than a generic netlink header", ErrMalformed)
	}
	return msg.Data[unix.GENL_HDRLEN:], nil
}

// Extracts the returned family id from the response. The kernel reports
// family name, id, version, etc; scan till we find the id.
func parseFamilyResp(msg syscall.NetlinkMessage) (uint16, error) {
	if err := verifyHeader(msg); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFamilyNotFound, err)
	}
	payload, err := genPayload(msg)
	if err != nil {
		return 0, err
	}
	attrs, err := parseAttributes(payload)
	if err != nil {
		return 0, err
	}
	for _, attr := range attrs {
		if attr.Type == unix.CTRL_ATTR_FAMILY_ID {
			if len(attr.Data) < 2 {
				return 0, fmt.Errorf("%w: short family id attribute", ErrMalformed)
			}
			return Endian.Uint16(attr.Data), nil
		}
	}
	return 0, fmt.Errorf("%w: family id not found in the response", ErrMalformed)
}

// Extracts task stats from a response returned by the kernel. The response
// carries one aggregate attribute (TASKSTATS_TYPE_AGGR_PID or _AGGR_TGID)
// whose value nests a pid/tgid echo attribute and the raw stats record.
func parseStatsResp(msg syscall.NetlinkMessage) (info.TaskStats, error) {
	var stats info.TaskStats
	if err := verifyHeader(msg); err != nil {
		return stats, err
	}
	payload, err := genPayload(msg)
	if err != nil {
		return stats, err
	}
	attrs, err := parseAttributes(payload)
	if err != nil {
		return stats, err
	}
	for _, attr := range attrs {
		switch attr.Type {
		case unix.TASKSTATS_TYPE_AGGR_PID, unix.TASKSTATS_TYPE_AGGR_TGID:
			return parseAggregateAttr(attr.Data)
		case unix.TASKSTATS_TYPE_NULL:
			// Empty reply marker.
		default:
			return stats, fmt.Errorf("%w: unexpected top-level attribute type %d", ErrMalformed, attr.Type)
		}
	}
	return stats, fmt.Errorf("%w: no aggregate attribute in response", ErrMalformed)
}

// parseAggregateAttr walks the nested attribute sequence inside an aggregate
// attribute and decodes the stats record.
func parseAggregateAttr(buf []byte) (info.TaskStats, error) {
	var stats info.TaskStats
	attrs, err := parseAttributes(buf)
	if err != nil {
		return stats, err
	}
	var tid uint32
	var haveTid bool
	var record []byte
	for _, attr := range attrs {
		switch attr.Type {
		case unix.TASKSTATS_TYPE_PID, unix.TASKSTATS_TYPE_TGID:
			if len(attr.Data) < 4 {
				return stats, fmt.Errorf("%w: short pid attribute", ErrMalformed)
			}
			tid = Endian.Uint32(attr.Data)
			haveTid = true
		case unix.TASKSTATS_TYPE_STATS:
			record = attr.Data
		}
	}
	if record == nil {
		return stats, fmt.Errorf("%w: no stats attribute in aggregate", ErrMalformed)
	}
	stats, err = decodeTaskStats(record)
	if err != nil {
		return stats, err
	}
	if haveTid {
		// The echoed id is authoritative for tgid queries, where the
		// record's own pid names an arbitrary thread of the group.
		stats.Tid = tid
	}
	return stats, nil
}

// Get family id for the taskstats subsystem.
func getFamilyID(conn *Connection) (uint16, error) {
	msg, err := prepareFamilyMessage()
	if err != nil {
		return 0, err
	}
	err = conn.WriteMessage(msg.toRawMsg())
	if err != nil {
		return 0, err
	}
	resp, err := readResponse(conn)
	if err != nil {
		return 0, err
	}
	return parseFamilyResp(resp)
}

// readResponse receives frames until it has the data frame for the request in
// flight. The kernel echoes our sequence number in every reply; a multi-part
// response is drained through its NLMSG_DONE marker even though taskstats
// replies are single-frame in practice.
func readResponse(conn *Connection) (syscall.NetlinkMessage, error) {
	resp, err := conn.ReadMessage()
	if err != nil {
		return resp, err
	}
	if resp.Header.Seq != conn.seq {
		return resp, fmt.Errorf("%w: reply sequence %d does not match request %d", ErrMalformed, resp.Header.Seq, conn.seq)
	}
	if resp.Header.Flags&syscall.NLM_F_MULTI != 0 {
		for {
			next, err := conn.ReadMessage()
			if err != nil {
				return resp, err
			}
			if next.Header.Type == syscall.NLMSG_DONE {
				break
			}
		}
	}
	return resp, nil
}
