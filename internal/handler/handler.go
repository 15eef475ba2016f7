package handler

import (
	"net/http"
	"strconv"

	"github.com/cradoe/payrail/internal/config"
	"github.com/cradoe/payrail/internal/errHandler"
	"github.com/cradoe/payrail/internal/helper"
	"github.com/cradoe/payrail/internal/notification"
	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/withdrawal"
)

type RouteHandler struct {
	DB           repository.Database
	ErrHandler   *errHandler.ErrorHandler
	Helper       *helper.HelperRepository
	Config       *config.Config
	Orchestrator *withdrawal.Orchestrator
	Commission   *withdrawal.CommissionResolver
	Notifier     *notification.Service
}

func NewRouteHandler(handler *RouteHandler) *RouteHandler {
	return &RouteHandler{
		DB:           handler.DB,
		ErrHandler:   handler.ErrHandler,
		Helper:       handler.Helper,
		Config:       handler.Config,
		Orchestrator: handler.Orchestrator,
		Commission:   handler.Commission,
		Notifier:     handler.Notifier,
	}
}

type queryStringValues struct {
	Limit  int
	Offset int
}

func retrieveUrlQueryValues(r *http.Request) *queryStringValues {
	var queryValues = &queryStringValues{}

	limitStr := r.URL.Query().Get("page_size")
	if limitStr == "" {
		limitStr = r.URL.Query().Get("limit")
	}
	offsetStr := r.URL.Query().Get("page")

	// Default pagination values
	offset := 0
	limit := 10

	if limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	queryValues.Limit = limit

	if offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 1 {
			offset = (parsedOffset - 1) * limit
		}
	}
	queryValues.Offset = offset

	return queryValues
}
