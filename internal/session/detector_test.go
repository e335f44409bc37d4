package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDetectorSilenceTriggersIdle(t *testing.T) {
	detector := NewDetector(30 * time.Millisecond)

	done := make(chan struct{}, 1)
	detector.OnIdle(func() {
		done <- struct{}{}
	})

	detector.OnUtteranceEnd()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected idle callback to fire")
	}
}

func TestDetectorSpeechResetsTimer(t *testing.T) {
	detector := NewDetector(80 * time.Millisecond)

	var fired atomic.Int32
	detector.OnIdle(func() {
		fired.Add(1)
	})

	detector.OnUtteranceEnd()
	time.Sleep(20 * time.Millisecond)
	detector.OnSpeech()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected 0 callbacks after speech reset, got %d", fired.Load())
	}
}

func TestDetectorDisabledWithZeroTimeout(t *testing.T) {
	detector := NewDetector(0)

	var fired atomic.Int32
	detector.OnIdle(func() { fired.Add(1) })
	detector.OnUtteranceEnd()

	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected disabled detector to stay quiet, got %d callbacks", fired.Load())
	}
}

func TestDetectorStopCancelsPendingTimer(t *testing.T) {
	detector := NewDetector(20 * time.Millisecond)

	var fired atomic.Int32
	detector.OnIdle(func() { fired.Add(1) })
	detector.OnUtteranceEnd()
	detector.Stop()
	detector.OnUtteranceEnd()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected no callbacks after Stop, got %d", fired.Load())
	}
}
