package voice

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sjawhar/clinic-assistant/internal/audio"
)

type SpeechClient interface {
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}

type TTS struct {
	client SpeechClient
	model  string
	voice  string
	speed  float64
	player *audio.Player
	out    audio.SampleWriter
}

func NewTTS(client SpeechClient, model, voice string, speed float64, out audio.SampleWriter) *TTS {
	return &TTS{
		client: client,
		model:  model,
		voice:  voice,
		speed:  speed,
		player: audio.NewPlayer(),
		out:    out,
	}
}

func (t *TTS) Say(ctx context.Context, text string) error {
	resp, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(t.model),
		Input:          text,
		Voice:          openai.SpeechVoice(t.voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
		Speed:          t.speed,
	})
	if err != nil {
		return fmt.Errorf("create speech: %w", err)
	}
	defer func() { _ = resp.Close() }()

	if _, err := t.player.Play(ctx, resp, t.out); err != nil {
		return fmt.Errorf("play speech: %w", err)
	}
	return nil
}
