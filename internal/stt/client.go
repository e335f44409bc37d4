package stt

import (
	"context"
	"fmt"
	"sync"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

var initOnce sync.Once

// Stream is a live transcription connection. Audio written to it must be an
// Ogg/Opus stream; Deepgram detects the container itself.
type Stream struct {
	ws *client.WSCallback
}

// Dial opens a live transcription stream that reports to listener.
func Dial(ctx context.Context, apiKey, model string, listener *Listener) (*Stream, error) {
	initOnce.Do(func() {
		client.Init(client.InitLib{LogLevel: client.LogLevelDefault})
	})

	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          model,
		Language:       "en-US",
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
	}

	ws, err := client.NewWSUsingCallback(ctx, apiKey, cOptions, tOptions, listener)
	if err != nil {
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := ws.Connect(); !ok {
		return nil, fmt.Errorf("deepgram connect failed")
	}
	return &Stream{ws: ws}, nil
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.ws.Write(p)
}

func (s *Stream) Close() error {
	s.ws.Stop()
	return nil
}
