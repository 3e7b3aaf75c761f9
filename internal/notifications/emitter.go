package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox"
	"github.com/angelmondragon/marketcore-backend/pkg/outbox/payloads"
)

// Request describes one in-app notification.
type Request struct {
	UserID  uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	Link    string
}

// Emitter persists notifications inside the caller's transaction and fans them out through the outbox.
type Emitter interface {
	Enqueue(ctx context.Context, tx *gorm.DB, req Request) error
}

type emitter struct {
	repo   Repository
	outbox outbox.Emitter
}

// NewEmitter wires the notification writer.
func NewEmitter(repo Repository, publisher outbox.Emitter) (Emitter, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &emitter{repo: repo, outbox: publisher}, nil
}

func (e *emitter) Enqueue(ctx context.Context, tx *gorm.DB, req Request) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if req.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification user id required")
	}
	if !req.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	if strings.TrimSpace(req.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification title required")
	}

	row := &models.Notification{
		UserID:  req.UserID,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
	}
	if link := strings.TrimSpace(req.Link); link != "" {
		row.Link = &link
	}
	if err := e.repo.WithTx(tx).Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create notification")
	}

	return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   row.ID,
		Data: payloads.NotificationRequestedEvent{
			NotificationID: row.ID,
			UserID:         row.UserID,
			Type:           row.Type,
			Title:          row.Title,
			Message:        row.Message,
			Link:           req.Link,
		},
	})
}
