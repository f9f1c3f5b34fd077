// internal/notify/dispatcher.go
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/events"
	"github.com/rovshanmuradov/launch-sniper/internal/storage"
)

// Subscriber registers event handlers.
type Subscriber interface {
	SubscribeFunc(eventType events.EventType, fn events.Handler) *events.Subscription
}

// Dispatcher turns bus events into chat messages. Users receive their own
// target and position updates; the admin chat receives detections and a copy
// of every user message.
type Dispatcher struct {
	notifier Notifier
	alerts   storage.AlertStore
	adminID  string
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. adminID may be empty.
func NewDispatcher(notifier Notifier, alerts storage.AlertStore, adminID string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		alerts:   alerts,
		adminID:  adminID,
		logger:   logger.Named("dispatcher"),
		now:      time.Now,
	}
}

// Register subscribes the dispatcher to every notified event type.
func (d *Dispatcher) Register(bus Subscriber) []*events.Subscription {
	subs := []*events.Subscription{
		bus.SubscribeFunc(events.LaunchDetected, d.onDetection),
		bus.SubscribeFunc(events.AssetAcquired, d.onDetection),
	}
	for _, typ := range []events.EventType{events.TargetExecuted, events.TargetFailed, events.TargetRetrying, events.TargetRejected, events.TargetCancelled} {
		subs = append(subs, bus.SubscribeFunc(typ, d.onTarget))
	}
	for _, typ := range []events.EventType{events.PositionClosed, events.PositionSellFailed, events.PositionInconsistent} {
		subs = append(subs, bus.SubscribeFunc(typ, d.onPosition))
	}
	return subs
}

func (d *Dispatcher) onDetection(ctx context.Context, e events.Event) error {
	ev, ok := e.(events.LaunchDetectedEvent)
	if !ok || d.adminID == "" {
		return nil
	}
	det := ev.Detection
	first, err := d.alerts.RecordAlert(ctx, det.Asset, det.Kind, d.adminID, d.now())
	if err != nil {
		d.logger.Warn("Alert history unavailable", zap.String("asset", det.Asset), zap.Error(err))
	}
	if err == nil && !first {
		d.logger.Debug("Skipping duplicate alert", zap.String("asset", det.Asset), zap.String("kind", string(det.Kind)))
		return nil
	}
	d.send(ctx, d.adminID, detectionMessage(det))
	return nil
}

func (d *Dispatcher) onTarget(ctx context.Context, e events.Event) error {
	ev, ok := e.(events.TargetEvent)
	if !ok || ev.Target == nil {
		return nil
	}
	if text, ok := targetMessage(ev); ok {
		d.toUser(ctx, ev.Target.UserID, text)
	}
	return nil
}

func (d *Dispatcher) onPosition(ctx context.Context, e events.Event) error {
	ev, ok := e.(events.PositionEvent)
	if !ok || ev.Target == nil {
		return nil
	}
	if text, ok := positionMessage(ev); ok {
		d.toUser(ctx, ev.Target.UserID, text)
	}
	return nil
}

func (d *Dispatcher) toUser(ctx context.Context, userID, text string) {
	d.send(ctx, userID, text)
	if d.adminID != "" && d.adminID != userID {
		d.send(ctx, d.adminID, "*User "+userID+"*\n"+text)
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID, text string) {
	if chatID == "" {
		return
	}
	if err := d.notifier.Notify(ctx, chatID, text); err != nil {
		d.logger.Warn("Notification failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}
