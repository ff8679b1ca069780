package compressor

import (
	"github.com/klauspost/compress/zstd"

	"github.com/lk2023060901/scenekeep-go/pkg/util/hardware"
)

// ZstdCompressor 基于 klauspost/compress/zstd，持有独立的 encoder/decoder。
type ZstdCompressor struct {
	enc             *zstd.Encoder
	dec             *zstd.Decoder
	minCompressSize int
}

var _ Compressor = (*ZstdCompressor)(nil)

// NewZstdCompressor 创建 ZstdCompressor。
//
// level 为 zstd 压缩级别名（"fastest"、"default"、"better"、"best"），为空时使用 default；
// concurrency <= 0 时使用 hardware.GetCPUNum()。
func NewZstdCompressor(level string, concurrency int) (*ZstdCompressor, error) {
	if concurrency <= 0 {
		concurrency = hardware.GetCPUNum()
	}
	speed := zstd.SpeedDefault
	if ok, lv := zstd.EncoderLevelFromString(level); ok {
		speed = lv
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithZeroFrames(true),
		zstd.WithEncoderLevel(speed),
		zstd.WithEncoderConcurrency(concurrency),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(concurrency))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

// SetMinCompressSize 设置触发压缩的最小字节数，小于该值的输入原样返回。
//
// 原样返回的数据不是 zstd 帧，调用方需要自己标记是否压缩过（见 codec 的 Header.Flags）。
func (c *ZstdCompressor) SetMinCompressSize(n int) {
	if n < 0 {
		n = 0
	}
	c.minCompressSize = n
}

// MinCompressSize 返回当前的压缩阈值。
func (c *ZstdCompressor) MinCompressSize() int {
	return c.minCompressSize
}

func (c *ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if c == nil || c.enc == nil {
		return nil, zstd.ErrEncoderClosed
	}
	if c.minCompressSize > 0 && len(src) < c.minCompressSize {
		return src, nil
	}
	return c.enc.EncodeAll(src, dst[:0]), nil
}

func (c *ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	if c == nil || c.dec == nil {
		return nil, zstd.ErrDecoderClosed
	}
	return c.dec.DecodeAll(src, dst[:0])
}

// Close 释放 encoder/decoder，之后再使用会返回 ErrEncoderClosed/ErrDecoderClosed。
func (c *ZstdCompressor) Close() {
	if c == nil {
		return
	}
	if c.enc != nil {
		_ = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}
