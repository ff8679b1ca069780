// Package codec 将 SelectionRecord 编码为可持久化的字节流。
//
// 写出：record --> serializer --> [compress?] --> [encrypt?] --> Envelope{Header+Payload} --> framer
//
// 读入：framer --> Envelope --> 版本检查 --> [decrypt?] --> [decompress?] --> serializer(按 Header 选择) --> record
package codec

import (
	"bytes"
	"io"
	"time"

	"github.com/blang/semver/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/scenekeep-go/internal/codec/compressor"
	"github.com/lk2023060901/scenekeep-go/internal/codec/crypto"
	"github.com/lk2023060901/scenekeep-go/internal/codec/framer"
	"github.com/lk2023060901/scenekeep-go/internal/codec/serializer"
	"github.com/lk2023060901/scenekeep-go/internal/snapshot"
	"github.com/lk2023060901/scenekeep-go/pkg/metrics"
	"github.com/lk2023060901/scenekeep-go/pkg/util/merr"
)

// FormatVersion 为当前写出的记录格式版本。主版本号不同的记录拒绝读取。
var FormatVersion = semver.MustParse("1.0.0")

// Options 为 Codec 的依赖注入参数。
type Options struct {
	Framer     framer.Framer         // 为 nil 时使用默认的 LengthPrefixedFramer
	Serializer serializer.Serializer // 为 nil 时使用 JSONSerializer
	Compressor compressor.Compressor // 为 nil 时使用 NopCompressor
	Encryptor  crypto.Encryptor      // 为 nil 时使用 NopEncryptor

	EnableCompression bool
	EnableEncryption  bool
}

// Codec 负责 SelectionRecord 的编解码。并发安全取决于注入的组件，内置实现均可并发使用。
type Codec struct {
	framer     framer.Framer
	serializer serializer.Serializer
	compressor compressor.Compressor
	encryptor  crypto.Encryptor

	compress bool
	encrypt  bool
}

// New 创建 Codec。
func New(opts Options) (*Codec, error) {
	if opts.EnableEncryption && opts.Encryptor == nil {
		return nil, merr.WrapErrParameterMissing("Encryptor", "encryption enabled without encryptor")
	}
	c := &Codec{
		framer:     opts.Framer,
		serializer: opts.Serializer,
		compressor: opts.Compressor,
		encryptor:  opts.Encryptor,
		compress:   opts.EnableCompression,
		encrypt:    opts.EnableEncryption,
	}
	if c.framer == nil {
		c.framer = framer.NewLengthPrefixedFramer(0)
	}
	if c.serializer == nil {
		c.serializer = serializer.JSONSerializer{}
	}
	if c.compressor == nil {
		c.compressor = compressor.NopCompressor{}
	}
	if c.encryptor == nil {
		c.encryptor = crypto.NopEncryptor{}
	}
	return c, nil
}

// minSizer 由带压缩阈值的压缩器实现。
type minSizer interface {
	MinCompressSize() int
}

func (c *Codec) shouldCompress(body []byte) bool {
	if !c.compress || len(body) == 0 {
		return false
	}
	if ms, ok := c.compressor.(minSizer); ok && len(body) < ms.MinCompressSize() {
		return false
	}
	return true
}

// Encode 将记录编码后写入 w。
func (c *Codec) Encode(w io.Writer, rec *snapshot.SelectionRecord) error {
	if w == nil {
		return merr.WrapErrParameterMissing("writer")
	}
	if rec == nil {
		return merr.WrapErrParameterMissing("record")
	}

	body, err := c.serializer.Marshal(rec)
	if err != nil {
		return merr.WrapErrCodecFailed(StageSerialize, err)
	}

	header := framer.Header{
		Version:    FormatVersion.String(),
		Serializer: c.serializer.Kind(),
		Timestamp:  time.Now().UnixMilli(),
	}
	if c.shouldCompress(body) {
		if body, err = c.compressor.Compress(nil, body); err != nil {
			return merr.WrapErrCodecFailed(StageCompress, err)
		}
		header.Flags |= framer.FlagCompressed
	}
	if c.encrypt && len(body) > 0 {
		header.Flags |= framer.FlagEncrypted
		if body, err = c.encryptor.Encrypt(body, buildAAD(&header)); err != nil {
			return merr.WrapErrCodecFailed(StageEncrypt, err)
		}
	}

	if err := c.framer.WriteFrame(w, &framer.Envelope{Header: header, Payload: body}); err != nil {
		return merr.WrapErrCodecFailed(StageFrame, err)
	}
	return nil
}

// Decode 从 r 读取一帧并解码为记录。
func (c *Codec) Decode(r io.Reader) (*snapshot.SelectionRecord, *framer.Header, error) {
	if r == nil {
		return nil, nil, merr.WrapErrParameterMissing("reader")
	}
	env, err := c.framer.ReadFrame(r)
	if err != nil {
		return nil, nil, merr.WrapErrCodecFailed(StageFrame, err)
	}
	header := &env.Header
	if err := checkVersion(header.Version); err != nil {
		return nil, header, err
	}

	data := env.Payload
	if header.Flags.Has(framer.FlagEncrypted) {
		if !c.encrypt {
			return nil, header, merr.WrapErrCodecFailed(StageDecrypt, errors.New("encrypted record but encryption disabled"))
		}
		if data, err = c.encryptor.Decrypt(data, buildAAD(header)); err != nil {
			return nil, header, merr.WrapErrCodecFailed(StageDecrypt, err)
		}
	}
	if header.Flags.Has(framer.FlagCompressed) {
		if !c.compress {
			return nil, header, merr.WrapErrCodecFailed(StageDecompress, errors.New("compressed record but compression disabled"))
		}
		if data, err = c.compressor.Decompress(nil, data); err != nil {
			return nil, header, merr.WrapErrCodecFailed(StageDecompress, err)
		}
	}

	s, err := serializer.ByKind(header.Serializer)
	if err != nil {
		return nil, header, err
	}
	rec := &snapshot.SelectionRecord{}
	if err := s.Unmarshal(data, rec); err != nil {
		return nil, header, merr.WrapErrCodecFailed(StageDeserialize, err)
	}
	return rec, header, nil
}

// Marshal 将记录编码为字节切片。
func (c *Codec) Marshal(rec *snapshot.SelectionRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, rec); err != nil {
		return nil, err
	}
	metrics.RecordBytes.Observe(float64(buf.Len()))
	return buf.Bytes(), nil
}

// Unmarshal 从字节切片解码记录，data 中不能有多余的尾部数据。
func (c *Codec) Unmarshal(data []byte) (*snapshot.SelectionRecord, error) {
	r := bytes.NewReader(data)
	rec, _, err := c.Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, merr.WrapErrCodecFailed(StageFrame, errors.Newf("%d trailing bytes", r.Len()))
	}
	return rec, nil
}

// Fingerprint 返回记录内容的指纹，内容相同的记录指纹相同。
//
// 指纹基于 WireSerializer 的输出，与 Codec 配置的序列化器、压缩与加密无关。
func Fingerprint(rec *snapshot.SelectionRecord) (uint64, error) {
	data, err := serializer.WireSerializer{}.Marshal(rec)
	if err != nil {
		return 0, merr.WrapErrCodecFailed(StageSerialize, err)
	}
	return xxhash.Sum64(data), nil
}

func checkVersion(v string) error {
	got, err := semver.Parse(v)
	if err != nil {
		return merr.WrapErrRecordVersion(FormatVersion.String(), v, err.Error())
	}
	if got.Major != FormatVersion.Major {
		return merr.WrapErrRecordVersion(FormatVersion.String(), v)
	}
	return nil
}

// buildAAD 以报文头（不含 Size）作为加密关联数据，防止篡改头部。
func buildAAD(h *framer.Header) []byte {
	aad := *h
	aad.Size = 0
	return framer.MarshalHeader(&aad)
}
