package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM  = 1
	wavBitDepth16 = 16
)

// WAV is a decoded PCM file.
type WAV struct {
	Samples  []float32 // interleaved, full scale = 1
	Format   Format
	BitDepth int
}

func (w *WAV) Duration() float64 {
	if w.Format.SampleRate == 0 || w.Format.Channels == 0 {
		return 0
	}
	return float64(len(w.Samples)/w.Format.Channels) / float64(w.Format.SampleRate)
}

// ReadWAV decodes an integer PCM WAV file. A missing path yields
// ErrFileNotFound, anything that is not readable PCM yields
// ErrInvalidAudioFormat.
func ReadWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudioFormat, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a WAV file", ErrInvalidAudioFormat, path)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: unsupported WAV encoding %d (only integer PCM)", ErrInvalidAudioFormat, dec.WavAudioFormat)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidAudioFormat, dec.BitDepth)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: missing channel count or sample rate", ErrInvalidAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudioFormat, err)
	}
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: %s has no samples", ErrInvalidAudioFormat, path)
	}

	return &WAV{
		Samples:  intsToFloat(buf.Data, int(dec.BitDepth)),
		Format:   Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)},
		BitDepth: int(dec.BitDepth),
	}, nil
}

func intsToFloat(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned with a 128 midpoint.
		for i, v := range data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	scale := float32(int64(1) << (bitDepth - 1))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out
}

// ToInt16 converts float samples to 16-bit PCM, clipping out-of-range values.
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// WriteWAV writes interleaved samples as 16-bit PCM.
func WriteWAV(path string, samples []float32, f Format) error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("invalid WAV format %+v", f)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(out, f.SampleRate, wavBitDepth16, f.Channels, wavFormatPCM)
	pcm := ToInt16(samples)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: f.Channels,
			SampleRate:  f.SampleRate,
		},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: wavBitDepth16,
	}
	for i, s := range pcm {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
