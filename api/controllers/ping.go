package controllers

import (
	"net/http"

	"github.com/mvalderrama/shopflow-backend/api/responses"
)

// PublicPing answers unauthenticated liveness probes.
func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"message": "pong"})
	}
}
