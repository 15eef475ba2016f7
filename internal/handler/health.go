package handler

import (
	"net/http"

	"github.com/cradoe/payrail/internal/response"
)

func (h *RouteHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	message := "Up and grateful"

	err := response.JSONOkResponse(w, nil, message, nil)
	if err != nil {
		h.ErrHandler.ServerError(w, r, err)
	}
}
