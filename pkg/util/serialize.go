// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"io"
	"unsafe"

	"github.com/cockroachdb/errors"
)

type Serialize interface {
	WriteData(buffer []byte, len int) error
	Close() error
}

type Deserialize interface {
	ReadData(buffer []byte, len int) error
	Close() error
}

func Write[T any](value T, serial Serialize) error {
	cnt := int(unsafe.Sizeof(value))
	buf := PointerToSlice[byte](unsafe.Pointer(&value), cnt)
	return serial.WriteData(buf, cnt)
}

func Read[T any](value *T, deserial Deserialize) error {
	cnt := int(unsafe.Sizeof(*value))
	buf := PointerToSlice[byte](unsafe.Pointer(value), cnt)
	err := deserial.ReadData(buf, cnt)
	if err != nil {
		return err
	}
	return nil
}

func WriteString(s string, serial Serialize) error {
	err := Write[uint32](uint32(len(s)), serial)
	if err != nil {
		return err
	}
	if len(s) > 0 {
		return serial.WriteData(UnsafeStringToBytes(s), len(s))
	}
	return nil
}

func ReadString(deserial Deserialize) (string, error) {
	var l uint32
	err := Read[uint32](&l, deserial)
	if err != nil {
		return "", err
	}
	buf := make([]byte, l)
	err = deserial.ReadData(buf, int(l))
	if err != nil {
		return "", err
	}
	return string(buf), err
}

func WriteBytes(data []byte, serial Serialize) error {
	err := Write[uint64](uint64(len(data)), serial)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		return serial.WriteData(data, len(data))
	}
	return nil
}

func ReadBytes(deserial Deserialize) ([]byte, error) {
	var l uint64
	err := Read[uint64](&l, deserial)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, l)
	if l > 0 {
		err = deserial.ReadData(buf, int(l))
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// WriteSlice writes a length prefixed slice of fixed size values in
// native byte order.
func WriteSlice[T any](data []T, serial Serialize) error {
	err := Write[uint64](uint64(len(data)), serial)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var zero T
	cnt := len(data) * int(unsafe.Sizeof(zero))
	buf := PointerToSlice[byte](unsafe.Pointer(unsafe.SliceData(data)), cnt)
	return serial.WriteData(buf, cnt)
}

func ReadSlice[T any](deserial Deserialize) ([]T, error) {
	var l uint64
	err := Read[uint64](&l, deserial)
	if err != nil {
		return nil, err
	}
	ret := make([]T, l)
	if l == 0 {
		return ret, nil
	}
	var zero T
	cnt := int(l) * int(unsafe.Sizeof(zero))
	buf := PointerToSlice[byte](unsafe.Pointer(unsafe.SliceData(ret)), cnt)
	err = deserial.ReadData(buf, cnt)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func WriteOptional(
	noNil func() bool,
	doSerial func(serial Serialize) error,
	serial Serialize) error {
	has := noNil()
	err := Write[bool](has, serial)
	if err != nil {
		return err
	}
	if has {
		return doSerial(serial)
	}
	return err
}

func ReadOptional(
	doDeserial func(deserial Deserialize) error,
	deserial Deserialize) error {
	opt := false
	err := Read[bool](&opt, deserial)
	if err != nil {
		return err
	}
	if opt {
		return doDeserial(deserial)
	}
	return err
}

var _ Serialize = new(BufferSerialize)

type BufferSerialize struct {
	buf []byte
}

func NewBufferSerialize(capacity int) *BufferSerialize {
	return &BufferSerialize{
		buf: make([]byte, 0, capacity),
	}
}

func (serial *BufferSerialize) WriteData(buffer []byte, len int) error {
	serial.buf = append(serial.buf, buffer[:len]...)
	return nil
}

func (serial *BufferSerialize) Bytes() []byte {
	return serial.buf
}

func (serial *BufferSerialize) Close() error {
	return nil
}

var _ Deserialize = new(BufferDeserialize)

type BufferDeserialize struct {
	buf []byte
	off int
}

func NewBufferDeserialize(data []byte) *BufferDeserialize {
	return &BufferDeserialize{buf: data}
}

func (deserial *BufferDeserialize) ReadData(buffer []byte, len int) error {
	if deserial.off+len > Size(deserial.buf) {
		return errors.Wrapf(io.ErrUnexpectedEOF,
			"read %d bytes at offset %d of %d", len, deserial.off, Size(deserial.buf))
	}
	copy(buffer[:len], deserial.buf[deserial.off:deserial.off+len])
	deserial.off += len
	return nil
}

func (deserial *BufferDeserialize) Remaining() int {
	return len(deserial.buf) - deserial.off
}

func (deserial *BufferDeserialize) Close() error {
	return nil
}
