package framer

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// Framer 负责 Envelope 的打包与解包。
//
// 一帧为 4 字节大端长度 + Envelope 线格式。
type Framer interface {
	WriteFrame(w io.Writer, env *Envelope) error
	ReadFrame(r io.Reader) (*Envelope, error)
}

// ErrFrameTooLarge 表示帧长度超过上限。
var ErrFrameTooLarge = errors.New("framer: frame too large")

const defaultMaxFrameSize uint32 = 64 * 1024 * 1024 // 64MB

// LengthPrefixedFramer 使用 4 字节大端长度前缀作为帧边界。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为 Envelope 编码后的最大字节数，0 表示使用默认值。
	MaxFrameSize uint32
}

var _ Framer = (*LengthPrefixedFramer)(nil)

// NewLengthPrefixedFramer 创建长度前缀帧编码器，maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = defaultMaxFrameSize
	}
	return &LengthPrefixedFramer{MaxFrameSize: maxFrameSize}
}

func (f *LengthPrefixedFramer) maxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return defaultMaxFrameSize
	}
	return f.MaxFrameSize
}

func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, env *Envelope) error {
	if env == nil {
		return errors.New("framer: envelope is nil")
	}
	env.Header.Size = uint32(len(env.Payload))

	body := marshalEnvelope(env)
	if uint64(len(body)) > uint64(f.maxSize()) {
		return errors.Wrapf(ErrFrameTooLarge, "size %d exceeds %d", len(body), f.maxSize())
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return errors.Wrap(err, "framer: write prefix")
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "framer: write body")
	}
	return nil
}

func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) (*Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, errors.Wrap(err, "framer: read prefix")
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > f.maxSize() {
		return nil, errors.Wrapf(ErrFrameTooLarge, "size %d exceeds %d", length, f.maxSize())
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.Wrap(err, "framer: read body")
	}

	env := &Envelope{}
	if err := unmarshalEnvelope(body, env); err != nil {
		return nil, err
	}
	if int(env.Header.Size) != len(env.Payload) {
		return nil, errors.Newf("framer: payload size %d does not match header %d", len(env.Payload), env.Header.Size)
	}
	return env, nil
}
