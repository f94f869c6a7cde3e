package rpc

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"
)

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll,
// so one pair serves every request.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// binary maps an encoding to the one actually used for raw bytes:
// jsonParsed and unknown names fall back to base64.
func (e Encoding) binary() Encoding {
	switch e {
	case EncodingBase58, EncodingBase64Zstd:
		return e
	default:
		return EncodingBase64
	}
}

func (e Encoding) encode(data []byte) (string, error) {
	switch e.binary() {
	case EncodingBase58:
		return base58.Encode(data), nil
	case EncodingBase64Zstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return "", fmt.Errorf("zstd: %w", err)
		}
		return base64.StdEncoding.EncodeToString(enc.EncodeAll(data, nil)), nil
	default:
		return base64.StdEncoding.EncodeToString(data), nil
	}
}

func (e Encoding) decode(s string) ([]byte, error) {
	switch e.binary() {
	case EncodingBase58:
		return base58.Decode(s)
	case EncodingBase64Zstd:
		compressed, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("base64: %w", err)
		}
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return dec.DecodeAll(compressed, nil)
	default:
		return base64.StdEncoding.DecodeString(s)
	}
}

// EncodeAccountData renders data as the [payload, encoding] pair used in
// account responses.
func EncodeAccountData(data []byte, encoding Encoding) (interface{}, error) {
	encoded, err := encoding.encode(data)
	if err != nil {
		return nil, err
	}
	return []string{encoded, string(encoding.binary())}, nil
}

// DecodeAccountData reverses EncodeAccountData.
func DecodeAccountData(encoded string, encoding Encoding) ([]byte, error) {
	return encoding.decode(encoded)
}

// EncodeTransaction renders a wire transaction as [payload, encoding]. Only
// base58 and base64 apply to transactions.
func EncodeTransaction(data []byte, encoding Encoding) []string {
	if encoding != EncodingBase58 {
		encoding = EncodingBase64
	}
	encoded, _ := encoding.encode(data)
	return []string{encoded, string(encoding)}
}

// DecodeTransaction decodes a submitted wire transaction.
func DecodeTransaction(encoded string, encoding Encoding) ([]byte, error) {
	switch encoding {
	case "":
		return EncodingBase64.decode(encoded)
	case EncodingBase58, EncodingBase64:
		return encoding.decode(encoded)
	default:
		return nil, fmt.Errorf("unsupported transaction encoding %q", encoding)
	}
}

// ApplyDataSlice returns the requested window of data, clamped to its end.
func ApplyDataSlice(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	size := uint64(len(data))
	if slice.Offset >= size {
		return []byte{}
	}
	return data[slice.Offset:min(slice.Offset+slice.Length, size)]
}
