package agent

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/sjawhar/clinic-assistant/internal/audio"
	"github.com/sjawhar/clinic-assistant/internal/avatar"
	"github.com/sjawhar/clinic-assistant/internal/delta"
	"github.com/sjawhar/clinic-assistant/internal/session"
	"github.com/sjawhar/clinic-assistant/internal/stt"
	"github.com/sjawhar/clinic-assistant/internal/tools"
	"github.com/sjawhar/clinic-assistant/internal/transcript"
	"github.com/sjawhar/clinic-assistant/internal/voice"
)

type pipeline struct {
	conn        Conn
	transcript  *transcript.Store
	agent       *voice.Agent
	coordinator *session.Coordinator
	detector    *session.Detector
	avatar      *session.Avatar
}

// roomSession serves one room. It implements room.Handler and stt.Handler.
type roomSession struct {
	worker *Worker
	sess   *session.Session

	mu           sync.Mutex
	pipe         *pipeline
	callerJoined bool
	pendingAudio []audio.PacketSource
	stream       io.WriteCloser
	recorder     *audio.Recorder

	greetOnce sync.Once
	audioOnce sync.Once
	capture   sync.WaitGroup
}

func newRoomSession(w *Worker, sess *session.Session) *roomSession {
	return &roomSession{worker: w, sess: sess}
}

func (rs *roomSession) run() error {
	w := rs.worker
	ctx := rs.sess.Context()

	conn, err := w.deps.Join(ctx, rs.sess.Room, rs)
	if err != nil {
		rs.sess.End()
		return fmt.Errorf("join room: %w", err)
	}
	rs.sess.Attach(conn)
	if rs.sess.Ended() {
		conn.Disconnect()
		return nil
	}

	started := time.Now()
	var mirror delta.Mirror
	if obs := w.deps.Observer; obs != nil {
		mirror = obs.RoomMirror(rs.sess.Room)
		obs.SessionStarted(rs.sess.Room)
	}

	pub := delta.NewPublisher(conn, mirror)
	tr := transcript.NewStore()
	coord := session.NewCoordinator(rs.sess, tr, w.deps.Summarizer, w.deps.Store, pub, w.opts.Grace)
	clinic := tools.New(w.deps.Store, pub, rs.sess, coord, w.opts.Slots)

	var speaker voice.Speaker
	if w.deps.Speech != nil {
		out, err := conn.Voice()
		if err != nil {
			slog.Error("voice track unavailable, replies will not be spoken", "room", rs.sess.Room, "error", err)
		} else {
			speaker = voice.NewTTS(w.deps.Speech, w.opts.TTSModel, w.opts.TTSVoice, w.opts.TTSSpeed, out)
		}
	}

	p := &pipeline{
		conn:        conn,
		transcript:  tr,
		agent:       voice.NewAgent(w.deps.Chat, w.opts.Model, clinic, tools.Definitions(), tr, speaker),
		coordinator: coord,
		detector:    session.NewDetector(w.opts.Idle),
		avatar:      session.NewAvatar(rs.sess, w.deps.Avatar),
	}
	p.detector.OnIdle(func() {
		coord.Trigger("caller idle")
	})

	go session.NewWatcher(tr, pub, w.opts.PollInterval, w.opts.PollBackoff).Run(ctx)
	go p.agent.Run(ctx)

	rs.mu.Lock()
	rs.pipe = p
	joined := rs.callerJoined
	pending := rs.pendingAudio
	rs.pendingAudio = nil
	rs.mu.Unlock()

	rs.sess.MarkReady()
	slog.Info("agent session ready", "room", rs.sess.Room)

	if joined || len(callers(conn.Participants())) > 0 {
		rs.greet(p)
	}
	for _, src := range pending {
		rs.listen(src)
	}

	<-ctx.Done()
	coord.Trigger("session ended")
	<-coord.Done()

	p.detector.Stop()
	rs.capture.Wait()
	rs.closeAudio()

	if obs := w.deps.Observer; obs != nil {
		obs.SessionEnded(rs.sess.Room, coord.Summary(), time.Since(started))
	}
	return nil
}

func (rs *roomSession) current() *pipeline {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.pipe
}

func (rs *roomSession) greet(p *pipeline) {
	rs.greetOnce.Do(func() {
		ctx := rs.sess.Context()
		delay := rs.worker.opts.GreetingDelay
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := p.agent.Say(ctx, voice.Greeting); err != nil {
				slog.Warn("greeting failed", "room", rs.sess.Room, "error", err)
			}
		}()
	})
}

// listen streams the caller's audio to speech-to-text and the recording.
// Only the first caller track is used.
func (rs *roomSession) listen(src audio.PacketSource) {
	rs.audioOnce.Do(func() {
		ctx := rs.sess.Context()

		var dst io.Writer = io.Discard
		if dial := rs.worker.deps.Dial; dial != nil {
			stream, err := dial(ctx, rs.sess.Room, rs)
			if err != nil {
				slog.Error("speech-to-text unavailable", "room", rs.sess.Room, "error", err)
			} else {
				dst = stream
				rs.mu.Lock()
				rs.stream = stream
				rs.mu.Unlock()
			}
		}

		recorder := audio.NewRecorder(rs.worker.opts.AudioDir)
		if err := recorder.StartSession(rs.sess.Room); err != nil {
			slog.Warn("caller recording disabled", "room", rs.sess.Room, "error", err)
		} else {
			rs.mu.Lock()
			rs.recorder = recorder
			rs.mu.Unlock()
		}

		rs.capture.Add(1)
		go func() {
			defer rs.capture.Done()
			if err := audio.Capture(ctx, src, recorder.Writer(dst)); err != nil {
				slog.Error("caller audio capture failed", "room", rs.sess.Room, "error", err)
			}
		}()
	})
}

func (rs *roomSession) closeAudio() {
	rs.mu.Lock()
	stream, recorder := rs.stream, rs.recorder
	rs.stream, rs.recorder = nil, nil
	rs.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}
	if recorder == nil {
		return
	}
	path, err := recorder.EndSession()
	if err != nil {
		slog.Error("finish caller recording failed", "room", rs.sess.Room, "error", err)
		return
	}
	if path != "" {
		slog.Info("caller recording saved", "room", rs.sess.Room, "path", path)
	}
}

func callers(identities []string) []string {
	out := identities[:0:0]
	for _, id := range identities {
		if id != avatar.Identity {
			out = append(out, id)
		}
	}
	return out
}

func (rs *roomSession) OnParticipantJoined(identity string) {
	if identity == avatar.Identity {
		return
	}
	rs.mu.Lock()
	rs.callerJoined = true
	p := rs.pipe
	rs.mu.Unlock()

	if p != nil {
		rs.greet(p)
	}
}

func (rs *roomSession) OnParticipantLeft(identity string) {
	if identity == avatar.Identity {
		return
	}
	p := rs.current()
	if p == nil || len(callers(p.conn.Participants())) > 0 {
		return
	}
	p.coordinator.Trigger("caller left")
}

func (rs *roomSession) OnData(payload []byte, from string) {
	p := rs.current()
	if p == nil {
		if string(payload) == session.InitAvatarSignal {
			slog.Error("avatar signal dropped", "room", rs.sess.Room, "from", from, "error", session.ErrSessionNotReady)
		}
		return
	}
	p.avatar.HandleSignal(payload)
}

func (rs *roomSession) OnAudioTrack(track *webrtc.TrackRemote, from string) {
	if from == avatar.Identity {
		return
	}
	rs.acceptAudio(audio.FromTrack(track))
}

func (rs *roomSession) acceptAudio(src audio.PacketSource) {
	rs.mu.Lock()
	if rs.pipe == nil {
		rs.pendingAudio = append(rs.pendingAudio, src)
		rs.mu.Unlock()
		return
	}
	rs.mu.Unlock()
	rs.listen(src)
}

func (rs *roomSession) OnDisconnected() {
	if p := rs.current(); p != nil {
		p.coordinator.Trigger("room disconnected")
		return
	}
	rs.sess.End()
}

func (rs *roomSession) OnSpeech() {
	if p := rs.current(); p != nil {
		p.detector.OnSpeech()
	}
}

func (rs *roomSession) OnUtterance(u stt.Utterance) {
	p := rs.current()
	if p == nil {
		return
	}
	slog.Debug("caller utterance", "room", rs.sess.Room, "text", u.Text)
	p.agent.Enqueue(u.Text)
}

func (rs *roomSession) OnUtteranceEnd() {
	if p := rs.current(); p != nil {
		p.detector.OnUtteranceEnd()
	}
}
