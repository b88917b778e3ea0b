// Package encryptor reproduces the vendor's client-side request protection
// scheme. The payload is AES-CBC encrypted twice (shared secret, then a
// per-request random key) and the random key is encrypted with a textbook
// RSA transform. This is obfuscation the endpoint requires, not a security
// boundary.
package encryptor

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	fixedIV     = "0102030405060708"
	sharedKey   = "0CoJUm6Qyw8W8jud"
	publicExp   = "010001"
	modulusHex  = "00e0b509f6259df8642dbc35662901477df22677ec152b" +
		"5ff68ace615bb7b725152b3ab17a876aea8a5aa76d2e417" +
		"629ec4ee341f56135fccf695280104e0312ecbda92557c93" +
		"870114af6c9d05c4f7f0c3685b7a46bee255932575cce10b" +
		"424d813cfe4875d3e82047b97ddef52741d546b8e289dc69" +
		"35b3ece0462db0a22b8e7"

	randomKeyLen = 16
)

// EncryptedParams is the pair of form fields the vendor endpoint accepts.
type EncryptedParams struct {
	Params    string
	EncSecKey string
}

// EncryptParams protects a plaintext request body with a fresh random key.
func EncryptParams(plaintext string) (*EncryptedParams, error) {
	key, err := randomKey(randomKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return EncryptParamsWithKey(plaintext, key)
}

// EncryptParamsWithKey protects a plaintext request body using the supplied
// 16-character random key. Deterministic for a fixed key.
func EncryptParamsWithKey(plaintext, key string) (*EncryptedParams, error) {
	if len(key) != randomKeyLen {
		return nil, fmt.Errorf("random key must be %d characters, got %d", randomKeyLen, len(key))
	}

	first, err := aesEncrypt([]byte(plaintext), []byte(sharedKey))
	if err != nil {
		return nil, fmt.Errorf("first AES pass failed: %w", err)
	}

	second, err := aesEncrypt([]byte(first), []byte(key))
	if err != nil {
		return nil, fmt.Errorf("second AES pass failed: %w", err)
	}

	return &EncryptedParams{
		Params:    second,
		EncSecKey: rsaEncrypt(key),
	}, nil
}

// aesEncrypt runs AES-128-CBC with the fixed public IV and PKCS#7 padding,
// returning base64.
func aesEncrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	encrypted := make([]byte, len(padded))

	mode := cipher.NewCBCEncrypter(block, []byte(fixedIV))
	mode.CryptBlocks(encrypted, padded)

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// rsaEncrypt applies the vendor's key transform: reverse the key, hex-encode
// it, raise to the public exponent modulo the fixed modulus, render as hex.
func rsaEncrypt(key string) string {
	reversed := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		reversed[i] = key[len(key)-1-i]
	}

	m := new(big.Int)
	m.SetString(hex.EncodeToString(reversed), 16)

	e := new(big.Int)
	e.SetString(publicExp, 16)

	n := new(big.Int)
	n.SetString(modulusHex, 16)

	c := new(big.Int).Exp(m, e, n)
	return c.Text(16)
}

// pkcs7Pad pads data to a multiple of blockSize.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// randomKey draws length characters from the vendor alphabet.
func randomKey(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(buf), nil
}
