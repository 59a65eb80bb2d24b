package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/reviews"
	"github.com/angelmondragon/storefront-backend/internal/wishlist"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions session.AccessSessionChecker,
	limiter *middleware.RateLimiter,
	metricsHandler http.Handler,
	authService auth.Service,
	productService product.Service,
	cartService cart.Service,
	orderService orders.Service,
	paymentService payments.Service,
	addressService addresses.Service,
	wishlistService wishlist.Service,
	reviewService reviews.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// A nil *redis.Client must reach the middleware as a nil interface.
	idem := middleware.NewIdempotency(nil, logg)
	loginLimit, registerLimit := passthrough, passthrough
	readiness := map[string]controllers.Pinger{"db": dbP}
	if redisClient != nil {
		idem = middleware.NewIdempotency(redisClient, logg)
		loginLimit = middleware.AuthRateLimit(middleware.NewAuthRateLimitPolicy(
			"login",
			cfg.RateLimit.LoginWindow,
			cfg.RateLimit.LoginIPLimit,
			cfg.RateLimit.LoginEmailLimit,
		), redisClient, logg)
		registerLimit = middleware.AuthRateLimit(middleware.NewAuthRateLimitPolicy(
			"register",
			cfg.RateLimit.RegisterWindow,
			cfg.RateLimit.RegisterIPLimit,
			cfg.RateLimit.RegisterEmailLimit,
		), redisClient, logg)
		readiness["redis"] = redisClient
	}
	optional := idem.Guard(middleware.IdempotencyOptional)
	critical := idem.Guard(middleware.IdempotencyCritical)
	required := idem.Guard(middleware.IdempotencyRequired)
	throttle := passthrough
	if limiter != nil {
		throttle = limiter.Middleware
	}
	authenticate := middleware.Auth(cfg.JWT, sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(throttle)
			r.With(registerLimit, optional).Post("/register", controllers.AuthRegister(authService, logg))
			r.With(loginLimit).Post("/login", controllers.AuthLogin(authService, logg))
			r.Post("/refresh", controllers.AuthRefresh(authService, logg))
			r.With(authenticate).Post("/logout", controllers.AuthLogout(authService, logg))
			r.With(authenticate).Get("/me", controllers.AuthMe(authService, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Use(throttle)
			r.Get("/", controllers.ProductList(productService, logg))
			r.Get("/featured", controllers.ProductFeatured(productService, logg))
			r.Get("/{productId}", controllers.ProductGet(productService, logg))
			r.Get("/{productId}/reviews", controllers.ReviewListForProduct(reviewService, logg))
			r.With(authenticate, optional).Post("/{productId}/reviews", controllers.ReviewSubmit(reviewService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate, throttle)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartList(cartService, logg))
				r.Delete("/", controllers.CartClear(cartService, logg))
				r.Get("/summary", controllers.CartSummary(cartService, logg))
				r.Post("/validate", controllers.CartValidate(cartService, logg))
				r.With(optional).Post("/items", controllers.CartAddLine(cartService, logg))
				r.Put("/items/{itemId}", controllers.CartUpdateQuantity(cartService, logg))
				r.Put("/items/{itemId}/variants", controllers.CartUpdateVariants(cartService, logg))
				r.Delete("/items/{itemId}", controllers.CartRemoveLine(cartService, logg))
				r.Delete("/products/{productId}", controllers.CartRemoveProduct(cartService, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.With(required).Post("/", controllers.OrderCreate(orderService, addressService, logg))
				r.Get("/", controllers.OrderListMine(orderService, logg))
				r.Get("/number/{orderNumber}", controllers.OrderGetByNumber(orderService, logg))
				r.Get("/{orderId}", controllers.OrderGet(orderService, logg))
				r.With(critical).Post("/{orderId}/cancel", controllers.OrderCancel(orderService, logg))
			})

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", controllers.AddressList(addressService, logg))
				r.Post("/", controllers.AddressCreate(addressService, logg))
				r.Get("/{addressId}", controllers.AddressGet(addressService, logg))
				r.Put("/{addressId}", controllers.AddressUpdate(addressService, logg))
				r.Delete("/{addressId}", controllers.AddressDelete(addressService, logg))
				r.Put("/{addressId}/default", controllers.AddressSetDefault(addressService, logg))
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", controllers.WishlistList(wishlistService, logg))
				r.Get("/ids", controllers.WishlistIDs(wishlistService, logg))
				r.Get("/{productId}", controllers.WishlistContains(wishlistService, logg))
				r.Post("/{productId}", controllers.WishlistAdd(wishlistService, logg))
				r.Delete("/{productId}", controllers.WishlistRemove(wishlistService, logg))
			})

			r.Route("/reviews", func(r chi.Router) {
				r.Put("/{reviewId}", controllers.ReviewUpdate(reviewService, logg))
				r.Delete("/{reviewId}", controllers.ReviewDelete(reviewService, logg))
			})

			r.Route("/payments", func(r chi.Router) {
				r.With(required).Post("/", controllers.PaymentCreate(paymentService, logg))
				r.Get("/", controllers.PaymentList(paymentService, logg))
				r.Get("/order/{orderId}", controllers.PaymentGetByOrder(paymentService, logg))
				r.Get("/{reference}", controllers.PaymentGet(paymentService, logg))
				r.With(required).Post("/{reference}/process", controllers.PaymentProcess(paymentService, logg))
				r.Post("/{reference}/cancel", controllers.PaymentCancel(paymentService, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(enums.RoleAdmin, logg))

				r.Route("/products", func(r chi.Router) {
					r.Get("/", controllers.AdminProductList(productService, logg))
					r.With(optional).Post("/", controllers.AdminProductCreate(productService, logg))
					r.Put("/{productId}", controllers.AdminProductUpdate(productService, logg))
					r.Delete("/{productId}", controllers.AdminProductDelete(productService, logg))
					r.Get("/{productId}/reviews", controllers.ReviewListAll(reviewService, logg))
				})

				r.Put("/reviews/{reviewId}/moderation", controllers.ReviewModerate(reviewService, logg))

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", controllers.AdminOrderList(orderService, logg))
					r.Get("/stats", controllers.AdminOrderStats(orderService, logg))
					r.Get("/revenue", controllers.AdminOrderRevenue(orderService, logg))
					r.Get("/recent", controllers.AdminOrderRecent(orderService, logg))
					r.With(optional).Put("/{orderId}/status", controllers.AdminOrderUpdateStatus(orderService, logg))
					r.Put("/{orderId}/tracking", controllers.AdminOrderTracking(orderService, logg))
					r.Put("/{orderId}/estimated-delivery", controllers.AdminOrderEstimatedDelivery(orderService, logg))
					r.Put("/{orderId}/payment-status", controllers.AdminOrderPaymentStatus(orderService, logg))
				})

				r.Route("/payments", func(r chi.Router) {
					r.Get("/", controllers.PaymentList(paymentService, logg))
					r.Get("/stats", controllers.AdminPaymentStats(paymentService, logg))
					r.Get("/revenue", controllers.AdminPaymentRevenue(paymentService, logg))
					r.With(required).Post("/{reference}/refund", controllers.AdminPaymentRefund(paymentService, logg))
				})
			})
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}
