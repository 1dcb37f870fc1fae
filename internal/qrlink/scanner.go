package qrlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	apperrors "digimenu/internal/errors"
)

var ErrStreamEnded = errors.New("qrlink: camera stream ended")

// Frame is one captured image. Its pixel layout is whatever the Camera and
// Detector agree on.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields frames until it is closed. Next returns io.EOF once the
// device stops producing.
type Stream interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Detector finds barcodes in a frame and returns their decoded text.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]string, error)
}

type Scanner struct {
	camera   Camera
	detector Detector
	logger   *zap.Logger
}

func NewScanner(camera Camera, detector Detector, logger *zap.Logger) *Scanner {
	return &Scanner{camera: camera, detector: detector, logger: logger}
}

// Scan reads frames until one yields a decodable payload. Only the first
// non-empty string of a frame is considered. Detection and decode failures
// are skipped. The stream is closed before Scan returns.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	stream, err := s.camera.Open(ctx)
	if err != nil {
		s.logger.Error("opening camera", zap.Error(err))
		return Result{}, fmt.Errorf("opening camera: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			s.logger.Warn("closing camera stream", zap.Error(cerr))
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		frame, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Result{}, ErrStreamEnded
			}
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			s.logger.Error("reading camera frame", zap.Error(err))
			return Result{}, fmt.Errorf("reading frame: %w", err)
		}

		codes, err := s.detector.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			s.logger.Debug("barcode detection failed", zap.Error(err))
			continue
		}

		text := firstNonEmpty(codes)
		if text == "" {
			continue
		}

		res, err := Decode(text)
		if err != nil {
			s.logger.Debug("ignoring undecodable payload", zap.Error(err))
			continue
		}
		s.logger.Info("payload scanned", zap.String("kind", res.Kind.String()))
		return res, nil
	}
}

func firstNonEmpty(codes []string) string {
	for _, c := range codes {
		if c != "" {
			return c
		}
	}
	return ""
}

// Session runs one scan at a time in the background, the way a scan screen
// does: Start arms the camera, the handler gets the result, and a new Start
// is refused until both the capture and the handler have finished.
type Session struct {
	scanner *Scanner
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSession(scanner *Scanner, logger *zap.Logger) *Session {
	return &Session{scanner: scanner, logger: logger}
}

func (s *Session) Start(ctx context.Context, handler func(Result)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return apperrors.NewConflictError("a scan is already in progress")
	}

	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			s.running = false
			s.cancel = nil
			s.mu.Unlock()
			close(done)
		}()

		res, err := s.scanner.Scan(scanCtx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("scan ended without a result", zap.Error(err))
			}
			return
		}
		handler(res)
	}()
	return nil
}

// Stop cancels the capture in progress, if any. It does not wait; use Wait
// for that.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the current capture and its handler have returned.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
