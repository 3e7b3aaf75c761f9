package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcore-backend/api/responses"
	"github.com/angelmondragon/marketcore-backend/api/validators"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

type inboxHandler func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error

// inbox resolves the caller and routes any returned error through the error envelope.
func inbox(svc notifications.Service, logg *logger.Logger, h inboxHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error = pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable")
		if svc != nil {
			var userID uuid.UUID
			if userID, err = requireUser(r); err == nil {
				err = h(w, r, userID)
			}
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

// ListNotifications serves GET /notifications?limit=&cursor=&unreadOnly=.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		page, err := validators.ParsePageQuery(r)
		if err != nil {
			return err
		}
		unreadOnly, err := validators.ParseQueryBool(r, "unreadOnly", false)
		if err != nil {
			return err
		}
		res, err := svc.List(r.Context(), notifications.ListParams{
			UserID:     userID,
			Limit:      page.Limit,
			Cursor:     page.Cursor,
			UnreadOnly: unreadOnly,
		})
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, res)
		return nil
	})
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		id, err := validators.ParseUUIDParam(r, "notificationId")
		if err != nil {
			return err
		}
		if err := svc.MarkRead(r.Context(), userID, id); err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]bool{"read": true})
		return nil
	})
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return inbox(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		n, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]int64{"updated": n})
		return nil
	})
}
