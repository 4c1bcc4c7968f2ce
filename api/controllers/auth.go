package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mvalderrama/shopflow-backend/api/responses"
	"github.com/mvalderrama/shopflow-backend/api/validators"
	"github.com/mvalderrama/shopflow-backend/internal/users"
	pkgauth "github.com/mvalderrama/shopflow-backend/pkg/auth"
	"github.com/mvalderrama/shopflow-backend/pkg/config"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
)

type tokenExchangeRequest struct {
	ChatID int64  `json:"chat_id" validate:"required"`
	Name   string `json:"name" validate:"required,max=128"`
}

type tokenExchangeResponse struct {
	Token  string           `json:"token"`
	UserID uuid.UUID        `json:"user_id"`
	Role   enums.MemberRole `json:"role"`
}

// AuthExchange upserts the messaging identity and mints an access token for
// it. The bot frontend calls this with its shared API key; end users never
// hit it directly.
func AuthExchange(repo users.Repository, jwtCfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenExchangeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := repo.FindByChatID(r.Context(), req.ChatID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user"))
				return
			}
			user = &models.User{
				ID:     uuid.New(),
				ChatID: req.ChatID,
				Name:   req.Name,
				Role:   enums.MemberRoleBuyer,
			}
		} else {
			user.Name = req.Name
		}
		if err := repo.Upsert(r.Context(), user); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store user"))
			return
		}

		token, err := pkgauth.MintAccessToken(jwtCfg, time.Now().UTC(), pkgauth.AccessTokenPayload{
			UserID: user.ID,
			ChatID: user.ChatID,
			Role:   user.Role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token"))
			return
		}

		responses.WriteSuccess(w, tokenExchangeResponse{Token: token, UserID: user.ID, Role: user.Role})
	}
}
