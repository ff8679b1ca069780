package compressor

// Compressor 抽象了对整段记录字节的单次压缩/解压。
type Compressor interface {
	// Compress 将 src 压缩到 dst，dst 可以是长度为 0 的复用缓冲区。
	Compress(dst, src []byte) (packet []byte, err error)

	// Decompress 将 Compress 的输出 src 解压到 dst。
	Decompress(dst, src []byte) (plain []byte, err error)
}

// NopCompressor 不做任何处理，直接返回输入。未开启压缩时作为默认值。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

var _ Compressor = NopCompressor{}
