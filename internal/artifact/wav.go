package artifact

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	wavHeaderSize    = 44
	wavPCMFormat     = 1
	wavBitsPerSample = 16
)

// WAVHeader is the canonical 44-byte PCM WAV header.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

func newWAVHeader(sampleRate int, channels int, dataSize uint32) WAVHeader {
	blockAlign := uint16(channels * wavBitsPerSample / 8)
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavPCMFormat,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: wavBitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// WAVWriter streams PCM into a WAV file. The header sizes are patched on Close.
type WAVWriter struct {
	file       *os.File
	buf        *bufio.Writer
	sampleRate int
	channels   int
	dataBytes  int64
	closed     bool
}

// CreateWAV truncates path and writes a placeholder header.
func CreateWAV(path string, sampleRate int, channels int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, newWAVHeader(sampleRate, channels, 0)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}

	return &WAVWriter{
		file:       file,
		buf:        bufio.NewWriterSize(file, 64*1024),
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Write appends raw s16le PCM.
func (w *WAVWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, os.ErrClosed
	}
	n, err := w.buf.Write(p)
	w.dataBytes += int64(n)
	return n, err
}

// Close flushes buffered audio, finalizes the header and closes the file.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush wav data: %w", err))
	}

	dataSize := uint32(w.dataBytes)
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		errs = append(errs, fmt.Errorf("failed to rewind wav file: %w", err))
	} else if err := binary.Write(w.file, binary.LittleEndian, newWAVHeader(w.sampleRate, w.channels, dataSize)); err != nil {
		errs = append(errs, fmt.Errorf("failed to finalize wav header: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("failed to sync wav file: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close wav file: %w", err))
	}
	return errors.Join(errs...)
}

// WAVInfo describes a finished capture artifact.
type WAVInfo struct {
	SampleRate int
	Channels   int
	DataBytes  int64
	Duration   time.Duration
}

// InspectWAV validates the header at path and reports its contents.
func InspectWAV(path string) (WAVInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer file.Close()

	var header WAVHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		return WAVInfo{}, fmt.Errorf("failed to read wav header: %w", err)
	}

	switch {
	case string(header.ChunkID[:]) != "RIFF":
		return WAVInfo{}, errors.New("invalid wav file: missing RIFF header")
	case string(header.Format[:]) != "WAVE":
		return WAVInfo{}, errors.New("invalid wav file: missing WAVE format")
	case string(header.Subchunk1ID[:]) != "fmt ":
		return WAVInfo{}, errors.New("invalid wav file: missing fmt chunk")
	case string(header.Subchunk2ID[:]) != "data":
		return WAVInfo{}, errors.New("invalid wav file: missing data chunk")
	case header.AudioFormat != wavPCMFormat || header.BitsPerSample != wavBitsPerSample:
		return WAVInfo{}, fmt.Errorf("unsupported wav encoding: format=%d bits=%d", header.AudioFormat, header.BitsPerSample)
	case header.SampleRate == 0 || header.BlockAlign == 0:
		return WAVInfo{}, errors.New("invalid wav file: zero sample rate")
	}

	frames := int64(header.Subchunk2Size) / int64(header.BlockAlign)
	return WAVInfo{
		SampleRate: int(header.SampleRate),
		Channels:   int(header.NumChannels),
		DataBytes:  int64(header.Subchunk2Size),
		Duration:   time.Duration(frames) * time.Second / time.Duration(header.SampleRate),
	}, nil
}
