// Copyright 2023 Kami
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

// Package message implements the OpenROBO wire format: the textual
// message header + parameter encoding (§4.1) and the length-prefixed
// framing that carries it over a stream socket (§4.2).
package message

import (
	"fmt"
	"strconv"
)

// Type identifies the six message headers. The wire header's leading
// byte is case-sensitive and distinct for every type, so dispatch never
// needs more than one byte of lookahead.
type Type byte

const (
	TypeUnknown Type = 0
	TypeStart   Type = 'S'
	TypeStop    Type = 's'
	TypeWait    Type = 'W'
	TypeReturn  Type = 'R'
	TypeRead    Type = 'r'
	TypeWrite   Type = 'w'
)

func (t Type) String() string {
	switch t {
	case TypeStart:
		return "Start"
	case TypeStop:
		return "stop"
	case TypeWait:
		return "Wait"
	case TypeReturn:
		return "Return"
	case TypeRead:
		return "read"
	case TypeWrite:
		return "write"
	default:
		return "unknown"
	}
}

const (
	headerStart  = "Start;"
	headerStop   = "stop;"
	headerWait   = "Wait;"
	headerReturn = "Return;"
	headerRead   = "read;"
	headerWrite  = "write;"
)

// Reserved parameter names (§3).
const (
	ParamSrc     = "#src"
	ParamDst     = "#dst"
	ParamSubject = "#subject"
	ParamReturn  = "#return"
	ParamTime    = "#time"
)

// Message wraps the raw wire bytes of one OpenROBO message. It is built
// incrementally by the MakeXXXMessage constructors and the SetParam
// family, and is otherwise read-only.
type Message struct {
	data []byte
}

// FromBytes wraps an already-framed payload (as handed back by ReadFrame)
// without copying it. The caller must not mutate buf afterwards.
func FromBytes(buf []byte) *Message {
	return &Message{data: buf}
}

// Bytes returns the raw wire representation.
func (m *Message) Bytes() []byte {
	return m.data
}

func (m *Message) String() string {
	return string(m.data)
}

// Clone returns an independent copy, suitable for owning storage on a
// join-queue list (§3 Join-queue entry: "a cloned message string").
func (m *Message) Clone() *Message {
	cp := make([]byte, len(m.data))
	copy(cp, m.data)
	return &Message{data: cp}
}

// Header returns the message's type, derived from the leading byte of
// the wire header (get-message-type, §4.1).
func (m *Message) Header() Type {
	if len(m.data) == 0 {
		return TypeUnknown
	}
	switch m.data[0] {
	case 'S':
		if hasPrefix(m.data, headerStart) {
			return TypeStart
		}
	case 's':
		if hasPrefix(m.data, headerStop) {
			return TypeStop
		}
	case 'W':
		if hasPrefix(m.data, headerWait) {
			return TypeWait
		}
	case 'R':
		if hasPrefix(m.data, headerReturn) {
			return TypeReturn
		}
	case 'r':
		if hasPrefix(m.data, headerRead) {
			return TypeRead
		}
	case 'w':
		if hasPrefix(m.data, headerWrite) {
			return TypeWrite
		}
	}
	return TypeUnknown
}

func hasPrefix(data []byte, prefix string) bool {
	if len(data) < len(prefix) {
		return false
	}
	return string(data[:len(prefix)]) == prefix
}

func headerFor(t Type) (string, error) {
	switch t {
	case TypeStart:
		return headerStart, nil
	case TypeStop:
		return headerStop, nil
	case TypeWait:
		return headerWait, nil
	case TypeReturn:
		return headerReturn, nil
	case TypeRead:
		return headerRead, nil
	case TypeWrite:
		return headerWrite, nil
	default:
		return "", fmt.Errorf("message: unknown type %v", t)
	}
}

// makeMessage resets buf and writes the header for t; every
// make-XXX-message constructor then appends "#subject=(s1),subject"
// (§4.1). Every header constant already ends in the ';' that separates
// it from the first parameter, so that first parameter is written with
// appendFirstParamHeader rather than appendParamHeader's own leading ';'
// (which every later parameter does need, to separate it from the one
// before).
func makeMessage(buf *Buffer, t Type) *Message {
	header, err := headerFor(t)
	if err != nil {
		panic(err)
	}
	buf.Reset()
	buf.data = append(buf.data, header...)
	return &Message{data: buf.data}
}

// appendFirstParamHeader is like appendParamHeader but omits the
// leading ';' the header's own trailing ';' already supplies.
func (m *Message) appendFirstParamHeader(name string, tag byte, count int) {
	m.data = append(m.data, name...)
	m.data = append(m.data, '=', '(', tag)
	m.data = strconv.AppendInt(m.data, int64(count), 10)
	m.data = append(m.data, ')', ',')
}

func MakeStartMessage(buf *Buffer, subject string) *Message {
	m := makeMessage(buf, TypeStart)
	m.appendFirstParamHeader(ParamSubject, tagString, 1)
	m.data = append(m.data, subject...)
	buf.data = m.data
	return m
}

func MakeStopMessage(buf *Buffer, subject string) *Message {
	m := makeMessage(buf, TypeStop)
	m.appendFirstParamHeader(ParamSubject, tagString, 1)
	m.data = append(m.data, subject...)
	buf.data = m.data
	return m
}

func MakeWaitMessage(buf *Buffer, subject string) *Message {
	m := makeMessage(buf, TypeWait)
	m.appendFirstParamHeader(ParamSubject, tagString, 1)
	m.data = append(m.data, subject...)
	buf.data = m.data
	return m
}

func MakeReturnMessage(buf *Buffer, subject string) *Message {
	m := makeMessage(buf, TypeReturn)
	m.appendFirstParamHeader(ParamSubject, tagString, 1)
	m.data = append(m.data, subject...)
	buf.data = m.data
	return m
}

func MakeReadMessage(buf *Buffer, subject string) *Message {
	m := makeMessage(buf, TypeRead)
	m.appendFirstParamHeader(ParamSubject, tagString, 1)
	m.data = append(m.data, subject...)
	buf.data = m.data
	return m
}

func MakeWriteMessage(buf *Buffer, subject string) *Message {
	m := makeMessage(buf, TypeWrite)
	m.appendFirstParamHeader(ParamSubject, tagString, 1)
	m.data = append(m.data, subject...)
	buf.data = m.data
	return m
}

// Subject returns the #subject reserved parameter, present on every
// well-formed message (operation name for Start/Stop/Wait/Return, key
// name for Read/Write — see GLOSSARY).
func (m *Message) Subject() (string, bool) {
	v, err := m.GetParamString(ParamSubject)
	if err != nil {
		return "", false
	}
	return v, true
}

func (m *Message) SourceID() (string, bool) {
	v, err := m.GetParamString(ParamSrc)
	if err != nil {
		return "", false
	}
	return v, true
}

func (m *Message) DestinationID() (string, bool) {
	v, err := m.GetParamString(ParamDst)
	if err != nil {
		return "", false
	}
	return v, true
}

func (m *Message) ReturnCode() (int, bool) {
	vs, err := m.GetParamInt(ParamReturn)
	if err != nil || len(vs) != 1 {
		return 0, false
	}
	return vs[0], true
}
