package crypto

// Encryptor 抽象了一种加密方案：Encrypt 生成带完整性保护的报文，Decrypt 验证并还原明文。
//
// aad 为关联数据，不加密但受完整性保护，codec 用记录头填充它。
type Encryptor interface {
	Encrypt(plaintext, aad []byte) (packet []byte, err error)
	Decrypt(packet, aad []byte) (plaintext []byte, err error)
}

// NopEncryptor 直接透传数据。
type NopEncryptor struct{}

func (NopEncryptor) Encrypt(plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

func (NopEncryptor) Decrypt(packet, _ []byte) ([]byte, error) {
	return packet, nil
}

var _ Encryptor = NopEncryptor{}
