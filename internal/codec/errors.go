package codec

// Stage 标记编解码链路中出错的阶段，用作 merr.ErrCodecFailed 的 stage 字段。
type Stage = string

const (
	StageSerialize   Stage = "serialize"
	StageDeserialize Stage = "deserialize"
	StageCompress    Stage = "compress"
	StageDecompress  Stage = "decompress"
	StageEncrypt     Stage = "encrypt"
	StageDecrypt     Stage = "decrypt"
	StageFrame       Stage = "frame"
)
