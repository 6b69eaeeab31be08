package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FixRejected unsticks a booking whose charge was rejected but whose local
// row never moved. Operator-facing; harmless to call on a healthy booking.
func (s *Server) FixRejected(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.reconciler.FixRejected(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("fix-rejected applied",
		zap.String("booking_id", id.String()),
		zap.String("outcome", string(outcome)),
	)
	c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
}

func (s *Server) FixPackage(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.reconciler.FixPackage(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Info("fix-package applied",
		zap.String("package_token", token),
		zap.String("outcome", string(outcome)),
	)
	c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
}

// ForceFixPackage settles a package without consulting the gateway. Meant
// for charges confirmed out of band; logged loudly.
func (s *Server) ForceFixPackage(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.reconciler.ForceFixPackage(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.log.Warn("force-fix-package applied",
		zap.String("package_token", token),
		zap.String("outcome", string(outcome)),
	)
	c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
}
