package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/accountax/marketd/internal/middleware"
	"github.com/accountax/marketd/internal/models"
)

// Routes mounts the full HTTP surface on app. Shared between the server and
// the handler tests so both run the same router.
func Routes(app *fiber.App) {
	app.Post("/api/user/register", RegisterHandler)
	app.Post("/api/user/login", LoginHandler)

	api := app.Group("/api", middleware.AuthMiddleware)

	api.Get("/wallet", GetWalletHandler)

	// Client routes live on the bare /api prefix, so the role guard goes on
	// each route. A guard passed to Group("") would mount as /api-wide
	// middleware and lock providers and admins out of their own groups.
	clientOnly := middleware.RequireRole(models.RoleClient)
	api.Post("/wallet/deposit", clientOnly, DepositHandler)
	api.Post("/requests", clientOnly, CreateRequestHandler)
	api.Get("/requests/my", clientOnly, MyRequestsHandler)
	api.Get("/requests/:id", clientOnly, GetRequestHandler)
	api.Put("/requests/:id", clientOnly, UpdateRequestHandler)
	api.Delete("/requests/:id", clientOnly, DeleteRequestHandler)
	api.Get("/requests/:id/proposals", clientOnly, ListRequestProposalsHandler)
	api.Post("/proposals/:id/accept", clientOnly, AcceptProposalHandler)
	api.Get("/bookings/my", clientOnly, MyBookingsHandler)
	api.Post("/bookings/:id/cancel", clientOnly, CancelBookingHandler)

	provider := api.Group("/provider", middleware.RequireRole(models.RoleServiceProvider))
	provider.Get("/requests", ListOpenRequestsHandler)
	provider.Get("/requests/:id", GetOpenRequestHandler)
	provider.Post("/proposals", CreateProposalHandler)
	provider.Get("/proposals/my", MyProposalsHandler)
	provider.Put("/proposals/:id", UpdateProposalHandler)
	provider.Post("/proposals/:id/cancel", CancelProposalHandler)
	provider.Get("/bookings/my", MyBookingsHandler)
	provider.Post("/bookings/:id/:action", TransitionBookingHandler)

	admin := api.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.Post("/requests/:id/approve", ApproveRequestHandler)
	admin.Post("/requests/:id/reject", RejectRequestHandler)
	admin.Post("/proposals/:id/approve", ApproveProposalHandler)
	admin.Post("/proposals/:id/reject", RejectProposalHandler)
	admin.Get("/orders", InProgressOrdersHandler)
	admin.Get("/orders/:id", GetOrderHandler)
	admin.Patch("/orders/:id/status", UpdateOrderStatusHandler)
	admin.Post("/orders/:id/warnings", AddWarningHandler)
	admin.Post("/orders/:id/risk", RecalculateRiskHandler)

	// registered last so /bookings/my above takes precedence
	api.Get("/bookings/:id", GetBookingHandler)
}
