package audio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2
)

type PacketSource interface {
	ReadPacket() (*rtp.Packet, error)
}

type trackSource struct {
	track *webrtc.TrackRemote
}

func (s trackSource) ReadPacket() (*rtp.Packet, error) {
	pkt, _, err := s.track.ReadRTP()
	return pkt, err
}

func FromTrack(track *webrtc.TrackRemote) PacketSource {
	return trackSource{track: track}
}

// Capture writes the Opus packets from src to w as an Ogg stream until the
// source ends or ctx is cancelled.
func Capture(ctx context.Context, src PacketSource, w io.Writer) error {
	ogg, err := oggwriter.NewWith(w, opusSampleRate, opusChannels)
	if err != nil {
		return fmt.Errorf("create ogg writer: %w", err)
	}
	defer func() { _ = ogg.Close() }()

	for {
		if ctx.Err() != nil {
			return nil
		}
		pkt, err := src.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read rtp: %w", err)
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if err := ogg.WriteRTP(pkt); err != nil {
			return fmt.Errorf("write ogg page: %w", err)
		}
	}
}
