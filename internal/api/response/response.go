// Package response writes the API's error envelope.
package response

import (
	"github.com/gin-gonic/gin"

	"parkaro/internal/apperr"
)

type errorBody struct {
	Code    apperr.Kind `json:"code"`
	Message string      `json:"message"`
}

// Error responds with {"error":{"code","message"}} and the status mapped
// from the error's kind. The error is also attached to the context so the
// request logger can record its cause.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{
		"error": errorBody{Code: kind, Message: apperr.MessageOf(err)},
	})
}
