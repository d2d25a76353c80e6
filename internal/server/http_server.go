package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter собирает маршруты движка за JWT-миддлварой
func NewRouter(h *Handler, jwtSecret, env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", AuthMiddleware(jwtSecret))
	{
		tutor := api.Group("/tutor")
		{
			tutor.POST("/slots", h.AddSlot)
			tutor.DELETE("/slots", h.RemoveSlot)
			tutor.POST("/slots/copy", h.CopyDay)
			tutor.POST("/slots/bulk", h.BulkCreate)
			tutor.DELETE("/slots/future", h.ClearFuture)
			tutor.GET("/template", h.GetTemplate)
			tutor.PUT("/template/:weekday", h.SetTemplateDay)
			tutor.POST("/template/materialize", h.Materialize)
			tutor.GET("/stats", h.Stats)
			tutor.GET("/audit", h.AuditHistory)
			tutor.POST("/sessions", h.CreateSession)
		}

		api.GET("/tutors/:id/slots", h.TutorSchedule)
		api.GET("/tutors/:id/sessions", h.TutorSessions)

		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.Book)
			bookings.GET("", h.ListBookings)
			bookings.POST("/:id/confirm", h.ConfirmBooking)
			bookings.POST("/:id/complete", h.CompleteBooking)
			bookings.POST("/:id/cancel", h.CancelBooking)
		}
	}

	return router
}

// Run запускает HTTP-сервер и гасит его по отмене контекста
func Run(ctx context.Context, router *gin.Engine, addr string, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
