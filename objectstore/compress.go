package objectstore

import (
	"encoding/binary"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"rebind/errors"
)

// Compression 对象内容的压缩算法
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

const maxObjectSize = 1 << 30

// 压缩帧头部：1 字节标志 + uvarint 原始长度
const (
	frameRaw        byte = 0
	frameCompressed byte = 1
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Suffix 压缩文件的扩展名
func (c Compression) Suffix() string {
	switch c {
	case CompressionLZ4:
		return ".lz4"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// ParseCompression 解析算法名称，空字符串表示 none
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return CompressionNone, errors.Newf(errors.ErrCodeInvalidInput, "unknown compression %q", name)
}

func (c Compression) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Compression) UnmarshalText(text []byte) error {
	v, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// zstd 编解码器可并发复用
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("objectstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("objectstore: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress 压缩数据；不可压缩时以原始帧保存
func (c Compression) Compress(data []byte) ([]byte, error) {
	var body []byte
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeStorage, "lz4 compress")
		}
		if n > 0 && n < len(data) {
			body = dst[:n]
		}
	case CompressionZstd:
		if out := zstdEncoder.EncodeAll(data, nil); len(out) < len(data) {
			body = out
		}
	default:
		return nil, errors.Newf(errors.ErrCodeUnsupported, "unsupported compression %d", c)
	}

	header := make([]byte, 1, 1+binary.MaxVarintLen64)
	if body == nil {
		header[0] = frameRaw
		body = data
	} else {
		header[0] = frameCompressed
	}
	header = binary.AppendUvarint(header, uint64(len(data)))
	return append(header, body...), nil
}

// Decompress 解压 Compress 的输出
func (c Compression) Decompress(frame []byte) ([]byte, error) {
	if c == CompressionNone {
		return frame, nil
	}
	if len(frame) < 2 {
		return nil, errors.NewError(errors.ErrCodeStorage, "compressed frame too short")
	}
	size, n := binary.Uvarint(frame[1:])
	if n <= 0 {
		return nil, errors.NewError(errors.ErrCodeStorage, "corrupt compressed frame header")
	}
	if size > maxObjectSize {
		return nil, errors.Newf(errors.ErrCodeStorage, "compressed frame claims %d bytes", size)
	}
	body := frame[1+n:]
	if frame[0] == frameRaw {
		if uint64(len(body)) != size {
			return nil, errors.Newf(errors.ErrCodeStorage, "raw frame size %d does not match %d", len(body), size)
		}
		return body, nil
	}

	switch c {
	case CompressionLZ4:
		dst := make([]byte, size)
		read, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeStorage, "lz4 decompress")
		}
		if uint64(read) != size {
			return nil, errors.Newf(errors.ErrCodeStorage, "lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return dst, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeStorage, "zstd decompress")
		}
		if uint64(len(out)) != size {
			return nil, errors.Newf(errors.ErrCodeStorage, "zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	}
	return nil, errors.Newf(errors.ErrCodeUnsupported, "unsupported compression %d", c)
}
