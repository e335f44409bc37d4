package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/sjawhar/clinic-assistant/internal/audio"
	"github.com/sjawhar/clinic-assistant/internal/delta"
)

type Config struct {
	URL       string
	APIKey    string
	APISecret string
	Identity  string
}

// Handler receives room events. Methods are called from LiveKit's
// goroutines and must not block.
type Handler interface {
	OnParticipantJoined(identity string)
	OnParticipantLeft(identity string)
	OnData(payload []byte, from string)
	OnAudioTrack(track *webrtc.TrackRemote, from string)
	OnDisconnected()
}

type Conn struct {
	name string
	room *lksdk.Room

	mu     sync.Mutex
	voice  *lksdk.LocalSampleTrack
	closed bool
}

func Join(ctx context.Context, cfg Config, roomName string, h Handler) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &Conn{name: roomName}
	callback := &lksdk.RoomCallback{
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			slog.Info("participant joined", "room", roomName, "identity", rp.Identity())
			h.OnParticipantJoined(rp.Identity())
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			slog.Info("participant left", "room", roomName, "identity", rp.Identity())
			h.OnParticipantLeft(rp.Identity())
		},
		OnDisconnected: func() {
			slog.Info("room disconnected", "room", roomName)
			h.OnDisconnected()
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if track.Kind() != webrtc.RTPCodecTypeAudio || rp.Identity() == cfg.Identity {
					return
				}
				slog.Info("caller audio subscribed", "room", roomName, "identity", rp.Identity(), "track", pub.SID())
				h.OnAudioTrack(track, rp.Identity())
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				packet, ok := data.(*lksdk.UserDataPacket)
				if !ok {
					return
				}
				h.OnData(packet.Payload, params.SenderIdentity)
			},
		},
	}

	room, err := lksdk.ConnectToRoom(cfg.URL, lksdk.ConnectInfo{
		APIKey:              cfg.APIKey,
		APISecret:           cfg.APISecret,
		RoomName:            roomName,
		ParticipantIdentity: cfg.Identity,
		ParticipantName:     cfg.Identity,
	}, callback, lksdk.WithAutoSubscribe(true))
	if err != nil {
		return nil, fmt.Errorf("connect to room %s: %w", roomName, err)
	}
	c.room = room
	return c, nil
}

func (c *Conn) Name() string {
	return c.name
}

func (c *Conn) Participants() []string {
	if c.room == nil {
		return nil
	}
	var out []string
	for _, rp := range c.room.GetRemoteParticipants() {
		out = append(out, rp.Identity())
	}
	return out
}

// SendReliable publishes payload to every participant with acknowledged
// delivery.
func (c *Conn) SendReliable(_ context.Context, payload []byte) error {
	c.mu.Lock()
	closed := c.closed || c.room == nil
	c.mu.Unlock()
	if closed {
		return delta.ErrChannelClosed
	}
	if err := c.room.LocalParticipant.PublishData(payload, lksdk.WithDataPublishReliable(true)); err != nil {
		return fmt.Errorf("publish data: %w", err)
	}
	return nil
}

func (c *Conn) VoiceTrack() (*lksdk.LocalSampleTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.room == nil {
		return nil, delta.ErrChannelClosed
	}
	if c.voice != nil {
		return c.voice, nil
	}

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	})
	if err != nil {
		return nil, fmt.Errorf("create voice track: %w", err)
	}
	if _, err := c.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "assistant-voice",
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		return nil, fmt.Errorf("publish voice track: %w", err)
	}
	c.voice = track
	return track, nil
}

// Voice returns the agent's voice track as a sample sink.
func (c *Conn) Voice() (audio.SampleWriter, error) {
	track, err := c.VoiceTrack()
	if err != nil {
		return nil, err
	}
	return trackWriter{track: track}, nil
}

type trackWriter struct {
	track *lksdk.LocalSampleTrack
}

func (w trackWriter) WriteSample(s media.Sample) error {
	return w.track.WriteSample(s, nil)
}

// Disconnect leaves the room. Later sends fail with delta.ErrChannelClosed.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.room != nil {
		c.room.Disconnect()
	}
}
