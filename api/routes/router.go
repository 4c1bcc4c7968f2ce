package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mvalderrama/shopflow-backend/api/controllers"
	"github.com/mvalderrama/shopflow-backend/api/middleware"
	"github.com/mvalderrama/shopflow-backend/internal/carts"
	"github.com/mvalderrama/shopflow-backend/internal/discounts"
	"github.com/mvalderrama/shopflow-backend/internal/ledger"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/payments"
	"github.com/mvalderrama/shopflow-backend/internal/products"
	"github.com/mvalderrama/shopflow-backend/internal/receipts"
	"github.com/mvalderrama/shopflow-backend/internal/settings"
	"github.com/mvalderrama/shopflow-backend/internal/users"
	"github.com/mvalderrama/shopflow-backend/pkg/config"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        controllers.Pinger
	Redis     controllers.Pinger
	Users     users.Repository
	Products  products.Repository
	Orders    orders.Repository
	Carts     carts.Service
	Discounts discounts.Engine
	Ledger    ledger.Service
	OrdersSvc orders.Service
	Payments  payments.Service
	Receipts  receipts.Service
	Settings  settings.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.BotKey(cfg.Auth, logg)).
			Post("/exchange", controllers.AuthExchange(deps.Users, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/products", controllers.ListProducts(deps.Products, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Carts, logg))
			r.Post("/items", controllers.CartAddItem(deps.Carts, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.Carts, logg))
		})

		r.Post("/checkout/quote", controllers.CheckoutQuote(deps.Carts, deps.Discounts, logg))
		r.Post("/checkout", controllers.Checkout(deps.Carts, deps.Discounts, deps.Ledger, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.OrdersSvc, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.OrdersSvc, logg))
			r.Post("/{orderId}/receipts", controllers.SubmitReceipt(deps.Receipts, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.MemberRoleManager), logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderQueue(deps.Orders, logg))
			r.Get("/{orderId}", controllers.AdminOrderDetail(deps.OrdersSvc, logg))
			r.Get("/{orderId}/events", controllers.AdminOrderEvents(deps.OrdersSvc, logg))
			r.Get("/{orderId}/receipts", controllers.AdminListReceipts(deps.Receipts, logg))
			r.Post("/{orderId}/approve", controllers.AdminApproveOrder(deps.Payments, logg))
			r.Post("/{orderId}/reject", controllers.AdminRejectOrder(deps.Payments, logg))
			r.Post("/{orderId}/complete", controllers.AdminCompleteOrder(deps.OrdersSvc, logg))
			r.Post("/{orderId}/retry-invite", controllers.AdminRetryInvite(deps.Payments, logg))
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Post("/{receiptId}/approve", controllers.AdminApproveReceipt(deps.Receipts, logg))
			r.Post("/{receiptId}/reject", controllers.AdminRejectReceipt(deps.Receipts, logg))
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", controllers.AdminListSettings(deps.Settings, logg))
			r.Get("/{key}", controllers.AdminGetSetting(deps.Settings, logg))
			r.Put("/{key}", controllers.AdminSetSetting(deps.Settings, logg))
			r.Delete("/{key}", controllers.AdminUnsetSetting(deps.Settings, logg))
		})
	})

	return r
}
