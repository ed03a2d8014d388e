package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/linlinbupt123-crypto/energy_share_service/service"
)

// requestLogger logs one line per request, with handler errors attached.
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("request failed")
			return
		}
		entry.Debug("request")
	}
}

func NewRouter(ws *service.WalletService, ps *service.PurchaseService, metrics *service.Metrics, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	walletHandler := NewWalletHandler(ws)
	purchaseHandler := NewPurchaseHandler(ps)
	projectHandler := NewProjectHandler(ps)

	users := r.Group("/users/:userID")
	{
		// 1) 钱包
		users.POST("/wallet", walletHandler.CreateWallet)
		users.GET("/wallet", walletHandler.GetWallet)
		users.POST("/wallet/verify", walletHandler.VerifyPassword)

		// 2) 购买
		users.POST("/purchases/estimate", purchaseHandler.Estimate)
		users.POST("/purchases", purchaseHandler.Submit)
		users.GET("/purchases", purchaseHandler.ListIntents)
		users.GET("/purchases/:intentID", purchaseHandler.GetIntent)
	}

	// 3) 项目与持仓
	r.GET("/projects", projectHandler.List)
	r.GET("/projects/:projectID", projectHandler.Get)
	r.PATCH("/projects/:projectID/metadata", projectHandler.UpdateMetadata)
	r.GET("/positions/:address/:projectID", projectHandler.GetPosition)

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return r
}
