package sender

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// LogSender logs instead of delivering. Used in development and as the
// fallback when no provider credentials are configured.
type LogSender struct {
	seq  int64
	mu   sync.Mutex
	sent []Message
}

// NewLogSender creates a log-only sender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

// Send records and logs the message.
func (s *LogSender) Send(_ context.Context, msg *Message) (*Result, error) {
	n := atomic.AddInt64(&s.seq, 1)
	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()

	log.Printf("[LogSender] Would send to %s: %q", logger.RedactAddress(msg.To), msg.Subject)
	return &Result{
		Success:   true,
		MessageID: fmt.Sprintf("log-%d", n),
		Provider:  "log",
		SentAt:    time.Now(),
	}, nil
}

// Sent returns a copy of everything sent so far.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// New builds a sender from config. Unknown providers and missing SES
// credentials fall back to the log sender so the scheduler keeps running.
func New(cfg config.SenderConfig) Sender {
	switch cfg.Provider {
	case "ses":
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			log.Printf("[Sender] SES selected but credentials missing, using log sender")
			return NewLogSender()
		}
		return NewSESSender(cfg.AccessKey, cfg.SecretKey, cfg.Region)
	case "log", "":
		return NewLogSender()
	default:
		log.Printf("[Sender] Unknown provider %q, using log sender", cfg.Provider)
		return NewLogSender()
	}
}
