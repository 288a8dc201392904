package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

const streamChunk = 1024

// DecodeWAV reads a whole WAV stream into a Buffer, keeping the file's channel count.
func DecodeWAV(r io.Reader) (Buffer, error) {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("failed to decode wav: %w", err)
	}
	defer func() {
		if cerr := streamer.Close(); cerr != nil {
			// Best-effort close of the decoder.
			_ = cerr
		}
	}()

	// The beep decoder only handles mono and stereo files.
	channels := format.NumChannels
	if channels < 1 {
		channels = 1
	}
	buf := Buffer{SampleRate: int(format.SampleRate), Channels: channels}
	if n := streamer.Len(); n > 0 {
		buf.Samples = make([]float64, 0, n*channels)
	}
	chunk := make([][2]float64, streamChunk)
	for {
		n, ok := streamer.Stream(chunk)
		for _, frame := range chunk[:n] {
			buf.Samples = append(buf.Samples, frame[0])
			if channels > 1 {
				buf.Samples = append(buf.Samples, frame[1])
			}
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return Buffer{}, fmt.Errorf("failed to read wav samples: %w", err)
	}
	return buf, nil
}

// LoadWAV opens and decodes a WAV file.
func LoadWAV(path string) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close for read-only audio.
			_ = cerr
		}
	}()
	return DecodeWAV(f)
}

// EncodeWAV writes the buffer as 16-bit PCM.
func EncodeWAV(w io.WriteSeeker, b Buffer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.Channels > 2 {
		return fmt.Errorf("audio: wav export supports at most 2 channels, got %d", b.Channels)
	}
	format := beep.Format{
		SampleRate:  beep.SampleRate(b.SampleRate),
		NumChannels: b.Channels,
		Precision:   2,
	}
	if err := wav.Encode(w, Streamer(b), format); err != nil {
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	return nil
}

// SaveWAV writes the buffer to path.
func SaveWAV(path string, b Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Streamer exposes the buffer as a beep.Streamer. Mono buffers play on both sides.
func Streamer(b Buffer) beep.Streamer {
	pos := 0
	frames := b.Frames()
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if pos >= frames {
			return 0, false
		}
		n := 0
		for n < len(samples) && pos < frames {
			base := pos * b.Channels
			left := b.Samples[base]
			right := left
			if b.Channels > 1 {
				right = b.Samples[base+1]
			}
			samples[n] = [2]float64{left, right}
			n++
			pos++
		}
		return n, true
	})
}
