package stt

import (
	"log/slog"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

// Handler receives the caller's speech as Deepgram reports it.
type Handler interface {
	// OnSpeech is called whenever final words arrive, before the utterance
	// is complete.
	OnSpeech()
	OnUtterance(u Utterance)
	OnUtteranceEnd()
}

// Listener implements Deepgram's LiveMessageCallback.
type Listener struct {
	room    string
	handler Handler
	buffer  *UtteranceBuffer
	now     func() time.Time
}

func NewListener(room string, handler Handler) *Listener {
	return &Listener{
		room:    room,
		handler: handler,
		buffer:  NewUtteranceBuffer(),
		now:     time.Now,
	}
}

func (l *Listener) Open(*api.OpenResponse) error {
	slog.Info("connected to Deepgram", "room", l.room)
	return nil
}

func (l *Listener) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return nil
	}

	// Interim results only matter for barge-in, which is not supported.
	if !mr.IsFinal {
		return nil
	}

	words := make([]Word, 0, len(alt.Words))
	for _, word := range alt.Words {
		words = append(words, Word{
			PunctuatedWord: word.PunctuatedWord,
			Start:          word.Start,
			End:            word.End,
		})
	}
	if len(words) == 0 {
		words = append(words, Word{PunctuatedWord: alt.Transcript})
	}

	l.buffer.AddWords(words)
	if l.handler != nil {
		l.handler.OnSpeech()
	}

	if mr.SpeechFinal {
		l.flush()
	}
	return nil
}

func (l *Listener) Metadata(*api.MetadataResponse) error { return nil }

func (l *Listener) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (l *Listener) UtteranceEnd(*api.UtteranceEndResponse) error {
	l.flush()
	if l.handler != nil {
		l.handler.OnUtteranceEnd()
	}
	return nil
}

func (l *Listener) Close(*api.CloseResponse) error {
	l.flush()
	slog.Info("disconnected from Deepgram", "room", l.room)
	return nil
}

func (l *Listener) Error(er *api.ErrorResponse) error {
	slog.Error("deepgram error", "room", l.room, "code", er.ErrCode, "description", er.Description)
	return nil
}

func (l *Listener) UnhandledEvent([]byte) error { return nil }

func (l *Listener) flush() {
	utterance, ok := Assemble(l.buffer.Flush(), l.now().UTC())
	if !ok || l.handler == nil {
		return
	}
	l.handler.OnUtterance(utterance)
}
