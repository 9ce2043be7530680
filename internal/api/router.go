package api

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"spot-matching/internal/account"
	"spot-matching/internal/metrics"
	"spot-matching/internal/pairspec"
	"spot-matching/internal/projection"
)

// Dependencies are the services behind the API
type Dependencies struct {
	Engine   Engine
	Accounts account.Service
	Pairs    *pairspec.Registry
	Orders   projection.OrderRepository
	Trades   projection.TradeRepository
	Logger   *zap.Logger
}

// Router sets up HTTP routes for the API
type Router struct {
	handler *Handler
	engine  *gin.Engine
}

// NewRouter creates a new API router
func NewRouter(deps Dependencies) *Router {
	handler := NewHandler(deps)

	g := gin.New()
	g.Use(ginzap.Ginzap(handler.logger, time.RFC3339, true))
	g.Use(ginzap.RecoveryWithZap(handler.logger, true))

	router := &Router{
		handler: handler,
		engine:  g,
	}

	router.setupRoutes()
	return router
}

// setupRoutes configures all HTTP routes
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.handler.Health)
	r.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.engine.Group("/v1")
	{
		orders := v1.Group("/orders")
		orders.POST("", r.handler.PlaceOrder)
		orders.GET("", r.handler.ListOrders)
		orders.GET("/:order_id", r.handler.QueryOrder)
		orders.DELETE("/:order_id", r.handler.CancelOrder)

		v1.GET("/trades", r.handler.ListTrades)
		v1.GET("/books/:base/:quote", r.handler.GetOrderBook)

		accounts := v1.Group("/accounts/:account_id")
		accounts.POST("/deposits", r.handler.Deposit)
		accounts.GET("/balances", r.handler.GetBalances)
	}
}

// ServeHTTP implements http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

// Handler returns the underlying HTTP handler
func (r *Router) Handler() http.Handler {
	return r.engine
}
