package kv

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"

	"github.com/daviszhen/radixorder/pkg/util"
)

const (
	flagCompressed uint8 = 1 << iota
	flagChecksum
	flagHidden
)

const (
	checksumSize = 32
	// payloads below this are stored as is even when compression is on
	minCompressSize = 512
)

type codec struct {
	compress bool
	checksum bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func newCodec(compress, checksum bool) (*codec, error) {
	c := &codec{
		compress: compress,
		checksum: checksum,
	}
	var err error
	c.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, errors.Wrap(err, "zstd encoder")
	}
	c.dec, err = zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decoder")
	}
	return c, nil
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}

// encode wraps a serialized value:
//
//	flags u8 | raw length u64 | blake3 sum (optional) | payload
func (c *codec) encode(raw []byte, hidden bool) ([]byte, error) {
	var flags uint8
	payload := raw
	if c.compress && len(raw) >= minCompressSize {
		payload = c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
		flags |= flagCompressed
	}
	if c.checksum {
		flags |= flagChecksum
	}
	if hidden {
		flags |= flagHidden
	}
	serial := util.NewBufferSerialize(len(payload) + 1 + 8 + checksumSize)
	if err := util.Write[uint8](flags, serial); err != nil {
		return nil, err
	}
	if err := util.Write[uint64](uint64(len(raw)), serial); err != nil {
		return nil, err
	}
	if c.checksum {
		sum := blake3.Sum256(raw)
		if err := serial.WriteData(sum[:], checksumSize); err != nil {
			return nil, err
		}
	}
	if err := serial.WriteData(payload, len(payload)); err != nil {
		return nil, err
	}
	return serial.Bytes(), nil
}

func (c *codec) decode(data []byte) ([]byte, error) {
	deserial := util.NewBufferDeserialize(data)
	var flags uint8
	var rawLen uint64
	if err := util.Read[uint8](&flags, deserial); err != nil {
		return nil, err
	}
	if err := util.Read[uint64](&rawLen, deserial); err != nil {
		return nil, err
	}
	var sum [checksumSize]byte
	if flags&flagChecksum != 0 {
		if err := deserial.ReadData(sum[:], checksumSize); err != nil {
			return nil, err
		}
	}
	payload := data[len(data)-deserial.Remaining():]
	raw := payload
	if flags&flagCompressed != 0 {
		var err error
		raw, err = c.dec.DecodeAll(payload, make([]byte, 0, rawLen))
		if err != nil {
			return nil, errors.Wrap(err, "zstd decode")
		}
	}
	if uint64(len(raw)) != rawLen {
		return nil, errors.Newf("payload length %d, header says %d", len(raw), rawLen)
	}
	if flags&flagChecksum != 0 {
		got := blake3.Sum256(raw)
		if !bytes.Equal(got[:], sum[:]) {
			return nil, errors.New("checksum mismatch")
		}
	}
	return raw, nil
}

func isHidden(data []byte) bool {
	return len(data) > 0 && data[0]&flagHidden != 0
}
