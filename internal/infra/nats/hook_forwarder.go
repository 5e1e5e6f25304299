package natsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerShare/internal/app/hooks"
	"go.uber.org/zap"
)

const (
	HookStreamName     = "POWERSHARE_HOOKS"
	HookSubjectPrefix  = "powershare.hooks."
	hookStreamMaxBytes = 256 * 1024 * 1024
	hookStreamMaxAge   = 7 * 24 * time.Hour
)

// Publisher is the JetStream publish call the forwarder needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// StreamManager looks up and creates JetStream streams.
type StreamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// EnsureHookStream creates the hook stream when it does not exist yet.
func EnsureHookStream(js StreamManager) error {
	if _, err := js.StreamInfo(HookStreamName); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     HookStreamName,
		Subjects: []string{HookSubjectPrefix + ">"},
		MaxBytes: hookStreamMaxBytes,
		MaxAge:   hookStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("nats: create hook stream: %w", err)
	}
	return nil
}

// HookEnvelope is the message body written for each forwarded notification.
type HookEnvelope struct {
	ID         string          `json:"id"`
	Hook       string          `json:"hook"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// HookForwarder copies in-process share notifications onto JetStream so other
// services can react to them.
type HookForwarder struct {
	js     Publisher
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHookForwarder creates a forwarder publishing through js.
func NewHookForwarder(js Publisher, logger *zap.Logger) *HookForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HookForwarder{js: js, logger: logger, now: time.Now}
}

// Attach subscribes the forwarder to the notifications it mirrors.
func (f *HookForwarder) Attach(registry *hooks.Registry) {
	for _, name := range []string{hooks.ShareRecorded, hooks.VisitRecorded} {
		registry.OnAction(name, func(_ context.Context, payload any) {
			f.Forward(name, payload)
		})
	}
}

// Forward publishes payload asynchronously; failures are logged and dropped. Calls
// after Close are ignored.
func (f *HookForwarder) Forward(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.Error("failed to encode hook payload", zap.String("hook", name), zap.Error(err))
		return
	}

	env := HookEnvelope{
		ID:         uuid.NewString(),
		Hook:       name,
		OccurredAt: f.now().UTC(),
		Payload:    data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		f.logger.Error("failed to encode hook envelope", zap.String("hook", name), zap.Error(err))
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		f.logger.Debug("hook forwarder closed, dropping notification", zap.String("hook", name))
		return
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		if _, err := f.js.Publish(HookSubjectPrefix+name, body, nats.MsgId(env.ID)); err != nil {
			f.logger.Warn("failed to forward hook", zap.String("hook", name), zap.Error(err))
		}
	}()
}

// Close stops accepting notifications and waits for in-flight publishes.
func (f *HookForwarder) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wg.Wait()
}
