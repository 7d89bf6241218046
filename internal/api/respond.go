package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/floegw/floe/internal/apierr"
)

// respondError writes the uniform error envelope and logs infrastructure
// failures with request-scoped context, the one translation point every
// handler shares instead of building ad hoc JSON bodies.
func (s *Server) respondError(c *gin.Context, err error) {
	apiErr := apierr.As(err)
	if apiErr.HTTPStatus >= 500 {
		s.log.Error(fmt.Sprintf("%s %s -> %s", c.Request.Method, c.FullPath(), apiErr.Code), apiErr)
	}
	c.JSON(apiErr.HTTPStatus, apiErr.ToEnvelope())
}
