package handler

import (
	"net/http"

	"zhsystem/internal/middleware"
	"zhsystem/internal/model"
)

// actorFromRequest describes the caller; email is the claimed login email for
// anonymous auth requests.
func actorFromRequest(r *http.Request, email string) model.AuditActor {
	actor := model.AuditActor{IP: middleware.ClientIP(r), Email: model.NormalizeEmail(email)}

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.UserID = claims.UserID
	if actor.Email == "" {
		actor.Email = claims.Email
	}
	return actor
}
