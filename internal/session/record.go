package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/phonoplay/internal/grading"
	"github.com/MrWong99/phonoplay/internal/observe"
	"github.com/MrWong99/phonoplay/pkg/provider/stt"
)

// Microphone opens an audio capture for one attempt.
type Microphone interface {
	// Open starts capturing. It returns an error wrapping
	// [ErrMicrophoneDenied] when the learner refused access.
	Open(ctx context.Context) (Capture, error)
}

// Capture is an open recording.
type Capture interface {
	// Stop ends the recording and returns what was captured.
	Stop() (stt.Audio, error)
	// Close releases the capture without producing audio. It must be safe to
	// call after Stop and more than once.
	Close() error
}

// Record starts a recording of the current word. Only one recording may run
// at a time. The recording stops on its own after the recording timeout.
func (s *Session) Record(ctx context.Context, mic Microphone) (Snapshot, error) {
	s.mu.Lock()
	if s.state == StateRecording && !s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrRecordingActive
	}
	if err := s.checkLocked(StateReady); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	gen := s.generation
	s.mu.Unlock()

	capture, err := mic.Open(ctx)

	s.mu.Lock()
	if err != nil {
		if errors.Is(err, ErrMicrophoneDenied) && !s.closed && s.generation == gen {
			s.problem = &Problem{Kind: ProblemMicrophoneDenied, Message: msgMicrophoneDenied}
			_, _ = s.commitLocked()
		} else {
			s.mu.Unlock()
		}
		return Snapshot{}, fmt.Errorf("session: open microphone: %w", err)
	}

	// The session may have moved on while the microphone was opening.
	if s.state == StateRecording && !s.closed {
		s.mu.Unlock()
		_ = capture.Close()
		return Snapshot{}, ErrRecordingActive
	}
	if err := s.checkLocked(StateReady); err != nil || s.generation != gen {
		s.mu.Unlock()
		_ = capture.Close()
		if err == nil {
			err = fmt.Errorf("%w: word changed while opening microphone", ErrInvalidTransition)
		}
		return Snapshot{}, err
	}

	s.capture = capture
	s.state = StateRecording
	s.feedback = nil
	s.transcript = ""
	s.recording = nil
	s.problem = nil
	s.recordingSeq++
	seq := s.recordingSeq
	s.stopTimer = time.AfterFunc(s.recordingTimeout, func() { s.autoStop(seq) })
	return s.commitLocked()
}

// StopRecording ends the active recording and starts grading it.
func (s *Session) StopRecording() (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkLocked(StateRecording); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.finishRecordingLocked()
	return s.commitLocked()
}

// CancelRecording discards the active recording and returns to ready
// without grading.
func (s *Session) CancelRecording() (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkLocked(StateRecording); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.releaseCaptureLocked()
	s.state = StateReady
	return s.commitLocked()
}

// Submit grades audio recorded by the client instead of through a
// [Microphone].
func (s *Session) Submit(ctx context.Context, audio stt.Audio) (Snapshot, error) {
	if len(audio.Data) == 0 {
		return Snapshot{}, stt.ErrEmptyAudio
	}
	s.mu.Lock()
	if s.state == StateRecording && !s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrRecordingActive
	}
	if err := s.checkLocked(StateReady); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.feedback = nil
	s.transcript = ""
	s.problem = nil
	s.startGradingLocked(audio)
	return s.commitLocked()
}

// autoStop ends recording seq. A timer that fired while its recording was
// being stopped finds a newer seq and does nothing.
func (s *Session) autoStop(seq uint64) {
	s.mu.Lock()
	if s.closed || s.recordingSeq != seq || s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.logger().Debug("recording timeout reached, stopping")
	s.finishRecordingLocked()
	_, _ = s.commitLocked()
}

// finishRecordingLocked stops the capture and moves to grading, or back to
// ready with a transcription problem when nothing usable was captured.
func (s *Session) finishRecordingLocked() {
	capture := s.capture
	s.stopCaptureTimerLocked()
	s.capture = nil

	audio, err := capture.Stop()
	_ = capture.Close()
	if err == nil && len(audio.Data) == 0 {
		err = stt.ErrEmptyAudio
	}
	if err != nil {
		s.logger().Warn("recording produced no audio", "error", err)
		res := grading.Unintelligible()
		s.feedback = &res
		s.problem = &Problem{Kind: ProblemTranscriptionFailure, Message: msgTranscription}
		s.state = StateReady
		return
	}
	s.startGradingLocked(audio)
}

// releaseCaptureLocked aborts an active recording, if any.
func (s *Session) releaseCaptureLocked() {
	s.stopCaptureTimerLocked()
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			s.logger().Debug("closing capture", "error", err)
		}
		s.capture = nil
	}
}

func (s *Session) stopCaptureTimerLocked() {
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
}

// startGradingLocked moves to grading and transcribes audio in the
// background.
func (s *Session) startGradingLocked(audio stt.Audio) {
	gen := s.generation
	target := s.currentTextLocked()
	s.state = StateGrading
	s.recording = &audio
	s.attempts++

	s.goAsync(func(ctx context.Context) {
		s.grade(ctx, gen, target, audio)
	})
}

func (s *Session) grade(ctx context.Context, gen uint64, target string, audio stt.Audio) {
	var (
		result  grading.Result
		heard   string
		problem *Problem
		graded  bool
		err     error
	)
	ctx, span := observe.StartSpan(ctx, observe.SpanGrade, trace.WithAttributes(attribute.String("word", target)))
	defer func() { observe.EndSpan(span, err) }()

	if s.transcriber == nil {
		problem = &Problem{Kind: ProblemTranscriptionFailure, Message: msgTranscription}
		result = grading.Unintelligible()
	} else {
		var tr stt.Transcript
		tr, err = s.transcriber.Transcribe(ctx, audio.Uploadable(), stt.Options{Language: s.language})
		if err != nil {
			observe.Logger(ctx).Warn("transcription failed", "word", target, "error", err)
			problem = &Problem{Kind: ProblemTranscriptionFailure, Message: msgTranscription}
			result = grading.Unintelligible()
		} else {
			heard = tr.Text
			result = s.grader.Grade(tr.Text, target)
			graded = true
		}
	}

	s.mu.Lock()
	if s.closed || s.generation != gen || s.state != StateGrading || s.currentTextLocked() != target {
		s.mu.Unlock()
		s.logger().Debug("discarding stale grading result", "word", target, "generation", gen)
		return
	}
	s.feedback = &result
	s.transcript = heard
	s.problem = problem
	s.state = StateReady
	if graded {
		s.history.Record(result.IsCorrect())
		if s.metrics != nil {
			s.metrics.RecordAttempt(ctx, string(result.Verdict))
		}
	}
	_, _ = s.commitLocked()
}

// Replay narrates the current word in the background. On success the
// snapshot gains an audio URL; failures are logged and otherwise ignored.
func (s *Session) Replay(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkLocked(StateReady, StateRecording, StateGrading); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if s.narrator == nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.logger().Debug("replay requested without a narrator", "kind", ProblemPlaybackFailure)
		return snap, nil
	}
	gen := s.generation
	target := s.currentTextLocked()
	s.audioURL = ""
	s.goAsync(func(ctx context.Context) {
		ctx, span := observe.StartSpan(ctx, observe.SpanNarrate, trace.WithAttributes(attribute.String("word", target)))
		audio, err := s.narrator.Speak(ctx, target, s.voiceID)
		observe.EndSpan(span, err)
		if err != nil {
			s.logger().Debug("narration failed", "kind", ProblemPlaybackFailure, "word", target, "error", err)
			return
		}
		s.mu.Lock()
		if s.closed || s.generation != gen || s.currentTextLocked() != target {
			s.mu.Unlock()
			return
		}
		s.audioURL = audio.Playable()
		_, _ = s.commitLocked()
	})
	return s.commitLocked()
}
