// Package encoder compresses processed 16 kHz mono audio for upload and for
// debug artifacts.
package encoder

import (
	"fmt"
	"time"
)

const (
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	EncodeTime() time.Duration
}

// Encode runs pcm through enc in BlockSize chunks and closes it.
func Encode(enc Encoder, pcm []int16) ([]byte, error) {
	for i := 0; i < len(pcm); i += BlockSize {
		end := min(i+BlockSize, len(pcm))
		if err := enc.EncodeBlock(pcm[i:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return enc.Bytes(), nil
}
