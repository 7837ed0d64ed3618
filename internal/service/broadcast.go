package service

import (
	"context"
	"encoding/json"
	"sync"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Delivery reports which targets a payload reached. Targets are connection
// ids, or user ids for players that had no live connection.
type Delivery struct {
	Delivered   []string `json:"delivered"`
	Undelivered []string `json:"undelivered"`
}

func (d Delivery) merge(other Delivery) Delivery {
	d.Delivered = append(d.Delivered, other.Delivered...)
	d.Undelivered = append(d.Undelivered, other.Undelivered...)
	return d
}

// Fanout pushes one payload to many connections concurrently. It never retries.
type Fanout struct {
	push       interfaces.PushChannel
	identities interfaces.IdentityRepository
	logger     *zap.Logger
}

func NewFanout(push interfaces.PushChannel, identities interfaces.IdentityRepository, logger *zap.Logger) *Fanout {
	return &Fanout{
		push:       push,
		identities: identities,
		logger:     logger.Named("Fanout"),
	}
}

// Send encodes payload once and delivers it to every connection id.
func (f *Fanout) Send(ctx context.Context, connectionIDs []string, payload interface{}) Delivery {
	var d Delivery
	if len(connectionIDs) == 0 {
		return d
	}
	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.Error("Failed to encode broadcast payload", zap.Error(err))
		d.Undelivered = append(d.Undelivered, connectionIDs...)
		broadcastDeliveriesTotal.WithLabelValues("failed").Add(float64(len(connectionIDs)))
		return d
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range connectionIDs {
		g.Go(func() error {
			err := f.sendRaw(ctx, id, data)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.Undelivered = append(d.Undelivered, id)
				return nil
			}
			d.Delivered = append(d.Delivered, id)
			return nil
		})
	}
	_ = g.Wait()
	return d
}

func (f *Fanout) sendRaw(ctx context.Context, connectionID string, data []byte) error {
	if connectionID == "" {
		broadcastDeliveriesTotal.WithLabelValues("missing").Inc()
		return models.ErrConnectionGone
	}
	if err := f.push.SendToConnection(ctx, connectionID, data); err != nil {
		f.logger.Debug("Delivery failed", zap.String("connectionID", connectionID), zap.Error(err))
		broadcastDeliveriesTotal.WithLabelValues("failed").Inc()
		return err
	}
	broadcastDeliveriesTotal.WithLabelValues("delivered").Inc()
	return nil
}

// SendOne delivers payload to a single connection.
func (f *Fanout) SendOne(ctx context.Context, connectionID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return f.sendRaw(ctx, connectionID, data)
}

// SendToSession delivers payload to every connected player except
// exceptConnection. Disconnected players are reported undelivered by user id.
func (f *Fanout) SendToSession(ctx context.Context, session *models.Session, payload interface{}, exceptConnection string) Delivery {
	d := f.Send(ctx, session.ConnectionIDs(exceptConnection), payload)
	for _, p := range session.Players {
		if !p.Connected() {
			d.Undelivered = append(d.Undelivered, p.UserID)
		}
	}
	return d
}

// SendToUsers resolves each user's live connection and delivers payload.
func (f *Fanout) SendToUsers(ctx context.Context, userIDs []string, payload interface{}) Delivery {
	var offline []string
	conns := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		b, err := f.identities.GetByUser(ctx, userID)
		if err != nil {
			offline = append(offline, userID)
			continue
		}
		conns = append(conns, b.ConnectionID)
	}
	return f.Send(ctx, conns, payload).merge(Delivery{Undelivered: offline})
}

// SendToAll delivers payload to every live binding.
func (f *Fanout) SendToAll(ctx context.Context, payload interface{}) Delivery {
	bindings, err := f.identities.ListBindings(ctx)
	if err != nil {
		f.logger.Error("Failed to list bindings for broadcast", zap.Error(err))
		return Delivery{}
	}
	conns := make([]string, 0, len(bindings))
	for _, b := range bindings {
		conns = append(conns, b.ConnectionID)
	}
	return f.Send(ctx, conns, payload)
}
