package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storyroom-server/internal/service"
	"storyroom-server/shared/constants"
	"storyroom-server/shared/models"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "storyroom-server/internal/handler"

type actionHandler func(ctx context.Context, conn string, caller models.Binding, data json.RawMessage) error

// EventRouter decodes inbound websocket messages and dispatches them to the
// services. Failures are reported to the acting connection only.
type EventRouter struct {
	identities *service.IdentityRegistry
	rooms      *service.RoomManager
	gameplay   *service.Gameplay
	reconnect  *service.ReconnectHandler
	fanout     *service.Fanout
	validate   *validator.Validate
	tracer     trace.Tracer
	logger     *zap.Logger
	handlers   map[string]actionHandler
}

func NewEventRouter(
	identities *service.IdentityRegistry,
	rooms *service.RoomManager,
	gameplay *service.Gameplay,
	reconnect *service.ReconnectHandler,
	fanout *service.Fanout,
	logger *zap.Logger,
) *EventRouter {
	r := &EventRouter{
		identities: identities,
		rooms:      rooms,
		gameplay:   gameplay,
		reconnect:  reconnect,
		fanout:     fanout,
		validate:   validator.New(),
		tracer:     otel.Tracer(tracerName),
		logger:     logger.Named("EventRouter"),
	}
	r.handlers = map[string]actionHandler{
		constants.WSActionCreateGameRoom:   r.createRoom,
		constants.WSActionListGameRooms:    r.listRooms,
		constants.WSActionRequestJoinRoom:  r.requestJoin,
		constants.WSActionRespondJoinRoom:  r.respondJoin,
		constants.WSActionInviteToRoom:     r.invite,
		constants.WSActionLeaveGameRoom:    r.leaveRoom,
		constants.WSActionStartGame:        r.startGame,
		constants.WSActionVoteStory:        r.voteStory,
		constants.WSActionPlayerReady:      r.playerReady,
		constants.WSActionGameChoice:       r.gameChoice,
		constants.WSActionGameJoinBack:     r.joinBack,
		constants.WSActionSessionBroadcast: r.sessionBroadcast,
		constants.WSActionAbandonSession:   r.abandon,
	}
	return r
}

// Handle processes one raw message received on conn.
func (r *EventRouter) Handle(ctx context.Context, conn string, raw []byte) {
	var msg models.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.fail(ctx, conn, "", fmt.Errorf("%w: malformed message: %v", models.ErrInvalid, err))
		inboundEventsTotal.WithLabelValues("malformed", errorCode(models.ErrInvalid)).Inc()
		return
	}

	h, ok := r.handlers[msg.Action]
	if !ok {
		r.fail(ctx, conn, msg.Action, fmt.Errorf("%w: unknown action %q", models.ErrInvalid, msg.Action))
		inboundEventsTotal.WithLabelValues("unknown", errorCode(models.ErrInvalid)).Inc()
		return
	}

	ctx, span := r.tracer.Start(ctx, "ws."+msg.Action, trace.WithAttributes(
		attribute.String("ws.action", msg.Action),
		attribute.String("ws.connection_id", conn),
	))
	defer span.End()

	err := r.dispatch(ctx, conn, msg, h)
	code := "ok"
	if err != nil {
		code = errorCode(err)
		if code == "internal_error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		r.fail(ctx, conn, msg.Action, err)
	}
	inboundEventsTotal.WithLabelValues(msg.Action, code).Inc()
}

func (r *EventRouter) dispatch(ctx context.Context, conn string, msg models.InboundMessage, h actionHandler) error {
	if err := r.validate.Struct(msg); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalid, err)
	}
	caller, err := r.identities.ResolveByConnection(ctx, conn)
	if err != nil {
		return err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("user.id", caller.UserID))
	return h(ctx, conn, caller, msg.Data)
}

// fail sends the error event to conn and logs unexpected failures.
func (r *EventRouter) fail(ctx context.Context, conn, action string, err error) {
	code := errorCode(err)
	message := err.Error()
	if code == "internal_error" {
		r.logger.Error("Failed to handle websocket action",
			zap.String("action", action),
			zap.String("connectionID", conn),
			zap.Error(err),
		)
		message = "internal error"
	} else {
		r.logger.Debug("Websocket action rejected",
			zap.String("action", action),
			zap.String("connectionID", conn),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	event := models.NewEvent(constants.WSEventError, models.ErrorEvent{RequestAction: action, Code: code, Message: message})
	if sendErr := r.fanout.SendOne(ctx, conn, event); sendErr != nil {
		r.logger.Debug("Failed to deliver error event", zap.String("connectionID", conn), zap.Error(sendErr))
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrExpired):
		return "expired"
	case errors.Is(err, models.ErrInvalid):
		return "invalid"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	default:
		return "internal_error"
	}
}

// decode unmarshals and validates an action payload.
func decode[T any](r *EventRouter, data json.RawMessage) (T, error) {
	var req T
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: malformed payload: %v", models.ErrInvalid, err)
	}
	if err := r.validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", models.ErrInvalid, err)
	}
	return req, nil
}

func (r *EventRouter) createRoom(ctx context.Context, _ string, caller models.Binding, data json.RawMessage) error {
	req, err := decode[models.CreateRoomRequest](r, data)
	if err != nil {
		return err
	}
	_, err = r.rooms.Create(ctx, caller.UserID, req.Public, req.Name)
	return err
}

func (r *EventRouter) listRooms(ctx context.Context, conn string, caller models.Binding, _ json.RawMessage) error {
	rooms, err := r.rooms.ListVisible(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return r.fanout.SendOne(ctx, conn, models.NewEvent(constants.WSEventGameRooms, models.RoomsList{Rooms: rooms}))
}

func (r *EventRouter) requestJoin(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.RoomRequest](r, data)
	if err != nil {
		return err
	}
	return r.rooms.RequestJoin(ctx, conn, req.HostID)
}

func (r *EventRouter) respondJoin(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.RespondJoinRequest](r, data)
	if err != nil {
		return err
	}
	return r.rooms.RespondJoin(ctx, conn, req.HostID, req.UserID, req.Accept)
}

func (r *EventRouter) invite(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.InviteRequest](r, data)
	if err != nil {
		return err
	}
	return r.rooms.Invite(ctx, conn, req.HostID, req.UserID)
}

func (r *EventRouter) leaveRoom(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.RoomRequest](r, data)
	if err != nil {
		return err
	}
	return r.rooms.Leave(ctx, conn, req.HostID)
}

func (r *EventRouter) startGame(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.RoomRequest](r, data)
	if err != nil {
		return err
	}
	session, err := r.rooms.Start(ctx, conn, req.HostID)
	if session != nil {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("session.id", session.ID))
	}
	return err
}

func (r *EventRouter) voteStory(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.VoteStoryRequest](r, data)
	if err != nil {
		return err
	}
	return r.gameplay.VoteStory(ctx, conn, req.SessionID, req.StoryID)
}

func (r *EventRouter) playerReady(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.PlayerReadyRequest](r, data)
	if err != nil {
		return err
	}
	return r.gameplay.PlayerReady(ctx, conn, req.SessionID, service.Readiness{
		Avatar:        req.Avatar,
		CharacterName: req.CharacterName,
		CharacterID:   req.CharacterID,
		Role:          req.Role,
	})
}

func (r *EventRouter) gameChoice(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.GameChoiceRequest](r, data)
	if err != nil {
		return err
	}
	return r.gameplay.Choose(ctx, conn, req.SessionID, *req.ChoiceIndex)
}

func (r *EventRouter) joinBack(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.SessionRequest](r, data)
	if err != nil {
		return err
	}
	_, err = r.reconnect.Resume(ctx, conn, req.SessionID)
	return err
}

func (r *EventRouter) sessionBroadcast(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.SessionBroadcastRequest](r, data)
	if err != nil {
		return err
	}
	delivery, err := r.gameplay.Relay(ctx, conn, req.SessionID, req.InternalAction, req.Payload)
	if err != nil {
		return err
	}
	if len(delivery.Undelivered) > 0 {
		r.logger.Debug("Relay partially delivered",
			zap.String("sessionID", req.SessionID),
			zap.Strings("undelivered", delivery.Undelivered),
		)
	}
	return nil
}

func (r *EventRouter) abandon(ctx context.Context, conn string, _ models.Binding, data json.RawMessage) error {
	req, err := decode[models.SessionRequest](r, data)
	if err != nil {
		return err
	}
	return r.gameplay.Abandon(ctx, conn, req.SessionID)
}
