package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sjawhar/clinic-assistant/internal/audio"
	"github.com/sjawhar/clinic-assistant/internal/config"
	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/room"
	"github.com/sjawhar/clinic-assistant/internal/session"
	"github.com/sjawhar/clinic-assistant/internal/storage"
	"github.com/sjawhar/clinic-assistant/internal/stt"
	"github.com/sjawhar/clinic-assistant/internal/voice"
)

// ErrClosed is returned by StartRoom after Shutdown.
var ErrClosed = errors.New("agent worker closed")

type Conn interface {
	SendReliable(ctx context.Context, payload []byte) error
	Participants() []string
	Voice() (audio.SampleWriter, error)
	Disconnect()
}

type JoinFunc func(ctx context.Context, roomName string, h room.Handler) (Conn, error)

// DialFunc opens a speech-to-text stream for a room. Ogg/Opus caller audio
// is written to it.
type DialFunc func(ctx context.Context, roomName string, h stt.Handler) (io.WriteCloser, error)

type Options struct {
	Model         string
	TTSModel      string
	TTSVoice      string
	TTSSpeed      float64
	Slots         []string
	AudioDir      string
	PollInterval  time.Duration
	PollBackoff   time.Duration
	Grace         time.Duration
	Idle          time.Duration
	GreetingDelay time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:         cfg.LLMModel,
		TTSModel:      cfg.TTSModel,
		TTSVoice:      cfg.TTSVoice,
		TTSSpeed:      cfg.TTSSpeed,
		Slots:         cfg.Slots,
		AudioDir:      cfg.AudioDir,
		PollInterval:  cfg.PollEvery(),
		PollBackoff:   cfg.PollBackoff(),
		Grace:         cfg.Grace(),
		Idle:          cfg.Idle(),
		GreetingDelay: cfg.Greeting(),
	}
}

type Observer interface {
	RoomMirror(roomName string) delta.Mirror
	SessionStarted(roomName string)
	SessionEnded(roomName, summary string, duration time.Duration)
}

// Deps are the collaborators shared by every room. Speech, Avatar and
// Observer are optional.
type Deps struct {
	Join       JoinFunc
	Dial       DialFunc
	Store      storage.Store
	Summarizer session.Summarizer
	Chat       voice.ChatClient
	Speech     voice.SpeechClient
	Avatar     session.AvatarStarter
	Observer   Observer
}

func LiveKitJoin(cfg room.Config) JoinFunc {
	return func(ctx context.Context, roomName string, h room.Handler) (Conn, error) {
		conn, err := room.Join(ctx, cfg, roomName, h)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func DeepgramDial(apiKey, model string) DialFunc {
	return func(ctx context.Context, roomName string, h stt.Handler) (io.WriteCloser, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("deepgram api key not configured")
		}
		stream, err := stt.Dial(ctx, apiKey, model, stt.NewListener(roomName, h))
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

type Worker struct {
	opts Options
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	rooms  map[string]*roomSession
	closed bool
}

func New(opts Options, deps Deps) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		opts:   opts,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*roomSession),
	}
}

// StartRoom joins roomName in the background. A room already being served
// is left alone.
func (w *Worker) StartRoom(roomName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, ok := w.rooms[roomName]; ok {
		return nil
	}
	if w.deps.Join == nil {
		return fmt.Errorf("start room %s: no room connector configured", roomName)
	}

	rs := newRoomSession(w, session.New(w.ctx, roomName))
	w.rooms[roomName] = rs

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.forget(roomName)
		if err := rs.run(); err != nil {
			slog.Error("room session failed", "room", roomName, "error", err)
		}
	}()
	return nil
}

func (w *Worker) Rooms() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.rooms))
	for name := range w.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (w *Worker) session(roomName string) *roomSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rooms[roomName]
}

func (w *Worker) forget(roomName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.rooms, roomName)
}

// Shutdown ends every session, letting each run its summary sequence, and
// waits for them or ctx.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for room sessions: %w", ctx.Err())
	}
}
