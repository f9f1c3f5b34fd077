// internal/eventlistener/subscriber.go
package eventlistener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
	connectTries   = 3
)

// LogNotification is one logsSubscribe push.
type LogNotification struct {
	Signature string
	Failed    bool
}

// LogSubscription streams notifications for one account.
type LogSubscription interface {
	Recv(ctx context.Context) (LogNotification, error)
	Unsubscribe()
}

// LogSubscriber opens log subscriptions.
type LogSubscriber interface {
	Subscribe(ctx context.Context, account solana.PublicKey) (LogSubscription, error)
	Close() error
}

// WSSubscriber opens logsSubscribe(mentions) streams over a single websocket
// connection, dialled on first use and redialled after a failure.
type WSSubscriber struct {
	url    string
	logger *zap.Logger

	mu     sync.Mutex
	client *ws.Client
}

// NewWSSubscriber creates a subscriber for the websocket endpoint url.
func NewWSSubscriber(url string, logger *zap.Logger) *WSSubscriber {
	return &WSSubscriber{url: url, logger: logger.Named("ws")}
}

func (s *WSSubscriber) conn(ctx context.Context) (*ws.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialBackoff
	b.MaxInterval = maxBackoff

	client, err := backoff.Retry(ctx, func() (*ws.Client, error) {
		return ws.Connect(ctx, s.url)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(connectTries))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", s.url, err)
	}
	s.logger.Info("Websocket connected", zap.String("url", s.url))
	s.client = client
	return client, nil
}

func (s *WSSubscriber) reset(client *ws.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == client {
		s.client.Close()
		s.client = nil
	}
}

// Subscribe opens a logsSubscribe stream for transactions mentioning account.
func (s *WSSubscriber) Subscribe(ctx context.Context, account solana.PublicKey) (LogSubscription, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := client.LogsSubscribeMentions(account, solanarpc.CommitmentConfirmed)
	if err != nil {
		s.reset(client)
		return nil, fmt.Errorf("logsSubscribe %s: %w", account, err)
	}
	return &wsSubscription{sub: sub, onError: func() { s.reset(client) }}, nil
}

// Close closes the websocket connection.
func (s *WSSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}

type wsSubscription struct {
	sub     *ws.LogSubscription
	onError func()
	once    sync.Once
}

func (w *wsSubscription) Recv(ctx context.Context) (LogNotification, error) {
	msg, err := w.sub.Recv(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.once.Do(w.onError)
		}
		return LogNotification{}, err
	}
	return LogNotification{
		Signature: msg.Value.Signature.String(),
		Failed:    msg.Value.Err != nil,
	}, nil
}

func (w *wsSubscription) Unsubscribe() {
	w.sub.Unsubscribe()
}
