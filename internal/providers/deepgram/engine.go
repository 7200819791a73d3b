package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"snapword/internal/domain"
	"snapword/internal/ports"
)

const (
	defaultBaseURL   = "https://api.deepgram.com/v1"
	defaultModel     = "nova-2"
	defaultChunkSize = 3200
	closeTimeout     = time.Second
)

// Config controls the Deepgram listen connection and its audio source.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
	Audio       ports.AudioConfig
	ChunkSize   int
}

// Engine implements ports.RecognitionEngine on the Deepgram streaming API.
// Each stream owns one microphone session.
type Engine struct {
	cfg    Config
	audio  ports.AudioCapture
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewEngine(audio ports.AudioCapture, cfg Config, logger *slog.Logger) *Engine {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, audio: audio, dialer: websocket.DefaultDialer, logger: logger}
}

func (e *Engine) Start(ctx context.Context, opts ports.RecognitionOptions) (ports.RecognitionStream, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", domain.ErrPermissionDenied)
	}
	wsURL, err := buildListenURL(e.cfg, opts)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.cfg.APIKey)
	conn, resp, err := e.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: deepgram returned %s", domain.ErrPermissionDenied, resp.Status)
		}
		return nil, fmt.Errorf("connect to deepgram: %w", err)
	}

	session, err := e.audio.Start(ctx, e.cfg.Audio)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start microphone: %w", err)
	}

	s := &stream{
		conn:      conn,
		audio:     session,
		logger:    e.logger,
		chunkSize: e.cfg.ChunkSize,
		events:    make(chan domain.RecognitionEvent, 64),
		stopping:  make(chan struct{}),
		readDone:  make(chan struct{}),
	}
	s.emit(domain.RecognitionEvent{Kind: domain.RecognitionEventStart})

	go s.readLoop()
	go s.pumpAudio()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.readDone:
		}
	}()
	return s, nil
}

type stream struct {
	conn      *websocket.Conn
	audio     ports.AudioSession
	logger    *slog.Logger
	chunkSize int

	events   chan domain.RecognitionEvent
	stopping chan struct{}
	readDone chan struct{}

	writeMu   sync.Mutex
	closeSent bool
	stopOnce  sync.Once
}

func (s *stream) Events() <-chan domain.RecognitionEvent {
	return s.events
}

// Stop ends the microphone, asks Deepgram to flush and closes the socket.
func (s *stream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopping)
		err = s.audio.Stop()
		s.sendCloseStream()

		select {
		case <-s.readDone:
		case <-time.After(closeTimeout):
		}
		_ = s.conn.Close()
		<-s.readDone
	})
	return err
}

func (s *stream) pumpAudio() {
	buf := make([]byte, s.chunkSize)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			if writeErr := s.write(websocket.BinaryMessage, buf[:n]); writeErr != nil {
				s.logger.Debug("deepgram audio write stopped", "error", writeErr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("microphone read stopped", "error", err)
			}
			s.sendCloseStream()
			return
		}
	}
}

func (s *stream) write(messageType int, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closeSent {
		return errors.New("stream already closed")
	}
	return s.conn.WriteMessage(messageType, payload)
}

func (s *stream) sendCloseStream() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closeSent {
		return
	}
	s.closeSent = true
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

func (s *stream) readLoop() {
	defer close(s.readDone)
	defer close(s.events)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isStopping() && !isNormalClose(err) {
				s.emit(domain.RecognitionEvent{Kind: domain.RecognitionEventError, Code: "network", Message: err.Error()})
			}
			return
		}

		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if strings.EqualFold(msg.Type, "Error") {
			text := strings.TrimSpace(msg.Message)
			if text == "" {
				text = "deepgram returned an unknown error"
			}
			s.emit(domain.RecognitionEvent{Kind: domain.RecognitionEventError, Code: "provider", Message: text})
			return
		}

		transcript := msg.transcript()
		if transcript == "" {
			continue
		}
		s.emit(domain.RecognitionEvent{
			Kind:       domain.RecognitionEventResult,
			Transcript: transcript,
			IsFinal:    msg.IsFinal || msg.SpeechFinal,
		})
	}
}

func (s *stream) emit(event domain.RecognitionEvent) {
	select {
	case s.events <- event:
	case <-s.stopping:
	}
}

func (s *stream) isStopping() bool {
	select {
	case <-s.stopping:
		return true
	default:
		return false
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

type message struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (m message) transcript() string {
	if len(m.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Channel.Alternatives[0].Transcript)
}

func buildListenURL(cfg Config, opts ports.RecognitionOptions) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram base url: %w", err)
	}
	if listenURL.Scheme != "ws" && listenURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid deepgram base url scheme %q", listenURL.Scheme)
	}

	audio := cfg.Audio
	if audio.SampleRate <= 0 {
		audio.SampleRate = 16000
	}
	if audio.Channels <= 0 {
		audio.Channels = 1
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(audio.SampleRate))
	query.Set("channels", strconv.Itoa(audio.Channels))
	query.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	query.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if opts.Language != "" {
		query.Set("language", opts.Language)
	}
	if opts.SilenceHintMS > 0 {
		query.Set("endpointing", strconv.Itoa(opts.SilenceHintMS))
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
