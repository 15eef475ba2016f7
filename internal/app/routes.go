package app

import (
	"net/http"

	"github.com/cradoe/payrail/internal/handler"
	"github.com/cradoe/payrail/internal/middleware"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	middlewareRepo := middleware.New(app.errorHandler, app.Logger, app.DB.User(), &app.Config)

	routeHandler := handler.NewRouteHandler(&handler.RouteHandler{
		DB:           app.DB,
		ErrHandler:   app.errorHandler,
		Helper:       app.helper,
		Config:       &app.Config,
		Orchestrator: app.Orchestrator,
		Commission:   app.Commission,
		Notifier:     app.Notifier,
	})

	mux.HandleFunc("GET /status", routeHandler.HandleHealthCheck)

	mux.HandleFunc("POST /api/v1/auth/register", routeHandler.HandleAuthRegister)
	mux.HandleFunc("POST /api/v1/auth/login", routeHandler.HandleAuthLogin)

	requireAuth := middlewareRepo.RequireAuthenticatedUser

	mux.Handle("GET /api/v1/users/me/bank-details", requireAuth(http.HandlerFunc(routeHandler.HandleBankDetailShow)))
	mux.Handle("PUT /api/v1/users/me/bank-details", requireAuth(http.HandlerFunc(routeHandler.HandleBankDetailUpsert)))

	mux.Handle("GET /api/v1/users/me/balance", requireAuth(http.HandlerFunc(routeHandler.HandleBalanceShow)))

	mux.Handle("POST /api/v1/withdrawals", requireAuth(http.HandlerFunc(routeHandler.HandleWithdrawalSubmit)))
	mux.Handle("GET /api/v1/withdrawals", requireAuth(http.HandlerFunc(routeHandler.HandleWithdrawalList)))
	mux.Handle("GET /api/v1/withdrawals/commission", requireAuth(http.HandlerFunc(routeHandler.HandleCommissionQuote)))
	mux.Handle("GET /api/v1/withdrawals/{id}", requireAuth(http.HandlerFunc(routeHandler.HandleWithdrawalShow)))
	mux.Handle("POST /api/v1/withdrawals/{id}/verify-otp", requireAuth(http.HandlerFunc(routeHandler.HandleWithdrawalVerifyOtp)))
	mux.Handle("POST /api/v1/withdrawals/{id}/resend-otp", requireAuth(http.HandlerFunc(routeHandler.HandleWithdrawalResendOtp)))

	return middlewareRepo.LogAccess(middlewareRepo.RecoverPanic(middlewareRepo.Authenticate(mux)))
}
