package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

const wavHeaderSize = 44

// WAVOutput records the session to a 16 bit PCM WAV file
type WAVOutput struct {
	file     *os.File
	w        *bufio.Writer
	filename string
	written  int64
	mu       sync.Mutex
}

func NewWAVOutput(filename string) *WAVOutput {
	return &WAVOutput{filename: filename}
}

func (w *WAVOutput) Open(sampleRate, channels, bufferSize int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return fmt.Errorf("%s already open", w.filename)
	}
	file, err := os.Create(w.filename)
	if err != nil {
		return fault.Wrap(err, fmsg.With("create wav "+w.filename))
	}
	w.file = file
	w.w = bufio.NewWriterSize(file, max(bufferSize*channels*2, 4096))
	w.written = 0

	// sizes are patched on Close
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")

	_, err = w.w.Write(header)
	return err
}

func (w *WAVOutput) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	file := w.file
	w.file = nil

	if err := w.w.Flush(); err != nil {
		file.Close()
		return fault.Wrap(err, fmsg.With("flush wav "+w.filename))
	}
	if err := patchSize(file, 4, uint32(w.written+36)); err != nil {
		file.Close()
		return err
	}
	if err := patchSize(file, 40, uint32(w.written)); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func patchSize(f *os.File, offset int64, v uint32) error {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, v)
}

func (w *WAVOutput) Write(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("file not open")
	}
	var b [2]byte
	for _, sample := range samples {
		binary.LittleEndian.PutUint16(b[:], uint16(sample))
		if _, err := w.w.Write(b[:]); err != nil {
			return err
		}
		w.written += 2
	}
	return nil
}

func (w *WAVOutput) IsPlaying() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file != nil
}
