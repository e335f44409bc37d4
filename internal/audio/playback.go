package audio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

type SampleWriter interface {
	WriteSample(sample media.Sample) error
}

var errBadPage = errors.New("invalid ogg page")

// Player streams an Ogg/Opus source to a SampleWriter in real time.
type Player struct {
	sleep func(time.Duration)
}

func NewPlayer() *Player {
	return &Player{sleep: time.Sleep}
}

// Play writes each Opus packet in r to w, pacing by packet duration. It
// returns the total audio duration written.
func (p *Player) Play(ctx context.Context, r io.Reader, w SampleWriter) (time.Duration, error) {
	demux := newOpusDemuxer(r)
	var total time.Duration
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		packet, err := demux.next()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		d := PacketDuration(packet)
		if err := w.WriteSample(media.Sample{Data: packet, Duration: d}); err != nil {
			return total, fmt.Errorf("write sample: %w", err)
		}
		total += d
		p.sleep(d)
	}
}

// opusDemuxer splits an Ogg stream into Opus packets, skipping the
// OpusHead and OpusTags headers.
type opusDemuxer struct {
	r       *bufio.Reader
	pending []byte
	queue   [][]byte
}

func newOpusDemuxer(r io.Reader) *opusDemuxer {
	return &opusDemuxer{r: bufio.NewReader(r)}
}

func (d *opusDemuxer) next() ([]byte, error) {
	for len(d.queue) == 0 {
		if err := d.readPage(); err != nil {
			return nil, err
		}
	}
	packet := d.queue[0]
	d.queue = d.queue[1:]
	return packet, nil
}

func (d *opusDemuxer) readPage() error {
	header := make([]byte, 27)
	if _, err := io.ReadFull(d.r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	if !bytes.Equal(header[:4], []byte("OggS")) {
		return errBadPage
	}

	segments := make([]byte, header[26])
	if _, err := io.ReadFull(d.r, segments); err != nil {
		return fmt.Errorf("read segment table: %w", err)
	}
	size := 0
	for _, s := range segments {
		size += int(s)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return fmt.Errorf("read page body: %w", err)
	}

	offset := 0
	for _, s := range segments {
		d.pending = append(d.pending, body[offset:offset+int(s)]...)
		offset += int(s)
		// A lacing value below 255 terminates the packet.
		if s < 255 {
			d.emit(d.pending)
			d.pending = nil
		}
	}
	return nil
}

func (d *opusDemuxer) emit(packet []byte) {
	if len(packet) == 0 {
		return
	}
	if bytes.HasPrefix(packet, []byte("OpusHead")) || bytes.HasPrefix(packet, []byte("OpusTags")) {
		return
	}
	d.queue = append(d.queue, packet)
}

// frameDurations is indexed by the TOC configuration number (RFC 6716 §3.1).
var frameDurations = [32]time.Duration{
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond,
	10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
	2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond,
}

// PacketDuration reads an Opus packet's TOC byte to find how much audio it
// carries.
func PacketDuration(packet []byte) time.Duration {
	if len(packet) == 0 {
		return 0
	}
	toc := packet[0]
	frame := frameDurations[toc>>3]

	frames := 1
	switch toc & 0x3 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) < 2 {
			return frame
		}
		frames = int(packet[1] & 0x3f)
	}
	return frame * time.Duration(frames)
}
