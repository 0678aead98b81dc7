// Package compress frames persisted segment state: an optional zstd or lz4
// compressed payload behind a small header carrying a CRC32C checksum of the
// uncompressed bytes.
//
// Frame layout (little endian):
//
//	[magic "VSF1"][type uint8][uncompressed uint32][crc32c uint32][payload...]
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores the payload as is.
	None Type = 0
	// LZ4 uses LZ4 block compression (fast, good for hot data).
	LZ4 Type = 1
	// ZSTD uses zstd compression (better ratio, good for cold data).
	ZSTD Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// ParseType parses "none", "lz4" or "zstd".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return 0, fmt.Errorf("unsupported compression %q", s)
	}
}

// ErrCorrupt is returned when a frame fails validation.
var ErrCorrupt = errors.New("corrupt frame")

var magic = [4]byte{'V', 'S', 'F', '1'}

const headerSize = 4 + 1 + 4 + 4

// crc32cTable is pre-computed for CRC32-Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode wraps data into a checksummed frame compressed with t.
// If compression doesn't help, the payload is stored uncompressed.
func Encode(data []byte, t Type) ([]byte, error) {
	payload := data
	used := None

	switch t {
	case None:
	case LZ4:
		compressed := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// n == 0 means incompressible
		if n > 0 && n < len(data) {
			payload, used = compressed[:n], LZ4
		}
	case ZSTD:
		enc := getZstdEncoder()
		compressed := enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
		if len(compressed) < len(data) {
			payload, used = compressed, ZSTD
		}
	default:
		return nil, fmt.Errorf("unsupported compression type %d", t)
	}

	frame := make([]byte, headerSize+len(payload))
	copy(frame, magic[:])
	frame[4] = byte(used)
	binary.LittleEndian.PutUint32(frame[5:], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[9:], crc32.Checksum(data, crc32cTable))
	copy(frame[headerSize:], payload)
	return frame, nil
}

// Decode validates a frame and returns the uncompressed payload.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < headerSize || [4]byte(frame[:4]) != magic {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	t := Type(frame[4])
	size := binary.LittleEndian.Uint32(frame[5:])
	sum := binary.LittleEndian.Uint32(frame[9:])
	payload := frame[headerSize:]

	var data []byte
	switch t {
	case None:
		data = payload
	case LZ4:
		data = make([]byte, size)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		data = data[:n]
	case ZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		data = out
	default:
		return nil, fmt.Errorf("%w: unknown compression type %d", ErrCorrupt, t)
	}

	if uint32(len(data)) != size {
		return nil, fmt.Errorf("%w: size %d, header says %d", ErrCorrupt, len(data), size)
	}
	if crc32.Checksum(data, crc32cTable) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return data, nil
}
