package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bizmatters/agent-builder/chart-studio/internal/auth"
)

// RegisterRoutes mounts the API on r. Routes under /api require a JWT when
// jwt is not nil. metricsHandler may be nil.
func RegisterRoutes(r *gin.Engine, h *Handler, stream *ChartStream, jwt *auth.JWTManager, metricsHandler http.Handler) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	api := r.Group("/api")
	if jwt != nil && h.deps.Users != nil {
		api.POST("/auth/login", h.Login)
	}

	protected := api.Group("")
	if jwt != nil {
		protected.Use(auth.RequireAuth(jwt))
	}
	{
		protected.GET("/chart", h.GetChart)
		protected.PUT("/chart", h.PutChart)
		protected.PATCH("/chart", h.PatchChart)
		protected.DELETE("/chart", h.DeleteChart)
		protected.GET("/chart/readonly-paths", h.ReadOnlyPaths)
		protected.POST("/chart/ai-edits", h.CreateAIEdit)

		protected.GET("/chat/messages", h.GetMessages)
		protected.DELETE("/chat/messages", h.DeleteMessages)
		protected.GET("/chat/draft", h.GetDraft)
		protected.PUT("/chat/draft", h.PutDraft)

		if stream != nil {
			protected.GET("/ws/chart", stream.Stream)
		}
	}
}
