package audio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Recorder keeps a copy of one room's caller audio as an Ogg/Opus file.
type Recorder struct {
	audioDir string

	mu      sync.Mutex
	room    string
	path    string
	file    *os.File
	written int64

	encode func(oggPath, room string) (string, error)
}

func NewRecorder(audioDir string) *Recorder {
	if audioDir == "" {
		audioDir = filepath.Join("data", "audio")
	}

	r := &Recorder{audioDir: audioDir}
	r.encode = r.defaultEncode
	return r
}

// Writer tees everything written to dst into the recording.
func (r *Recorder) Writer(dst io.Writer) io.Writer {
	return &teeWriter{recorder: r, dst: dst}
}

func (r *Recorder) StartSession(room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.audioDir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	if r.file != nil {
		_ = r.file.Close()
	}

	path := filepath.Join(r.audioDir, room+".ogg")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open recording file: %w", err)
	}

	r.room = room
	r.path = path
	r.file = file
	r.written = 0

	return nil
}

// EndSession closes the recording and returns its final path. An empty
// recording is removed and reported as "".
func (r *Recorder) EndSession() (string, error) {
	r.mu.Lock()
	if r.room == "" || r.file == nil {
		r.mu.Unlock()
		return "", nil
	}

	room, path, file, written := r.room, r.path, r.file, r.written
	r.room = ""
	r.path = ""
	r.file = nil
	r.mu.Unlock()

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close recording file: %w", err)
	}
	if written == 0 {
		_ = os.Remove(path)
		return "", nil
	}

	return r.encode(path, room)
}

func (r *Recorder) write(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}

	n, err := r.file.Write(data)
	r.written += int64(n)
	if err != nil {
		return fmt.Errorf("write recording bytes: %w", err)
	}
	return nil
}

// defaultEncode transcodes to mp3 when ffmpeg is available and otherwise
// keeps the Ogg file.
func (r *Recorder) defaultEncode(oggPath, room string) (string, error) {
	mp3Path := filepath.Join(r.audioDir, room+".mp3")
	if err := encodeWithFFmpeg(oggPath, mp3Path); err != nil {
		return oggPath, nil
	}
	_ = os.Remove(oggPath)
	return mp3Path, nil
}

func encodeWithFFmpeg(inputPath, outputPath string) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return err
	}
	cmd := exec.Command("ffmpeg", "-y", "-loglevel", "error", "-i", inputPath, outputPath)
	return cmd.Run()
}

type teeWriter struct {
	recorder *Recorder
	dst      io.Writer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if err != nil {
		return n, err
	}

	if err := w.recorder.write(p[:n]); err != nil {
		return n, err
	}

	return n, nil
}
