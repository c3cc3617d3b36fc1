package handler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"parkaro/internal/api/response"
	"parkaro/internal/apperr"
)

// bindJSON decodes and validates the body into dto. It responds and returns
// false on failure. Any problem with a charge level field is INVALID_LEVEL;
// everything else is VALIDATION.
func bindJSON(c *gin.Context, dto any) bool {
	err := c.ShouldBindJSON(dto)
	if err == nil {
		return true
	}
	if isChargeLevelError(err) {
		response.Error(c, apperr.Wrap(apperr.KindInvalidLevel, "charge level must be an integer within [0,100]", err))
		return false
	}
	response.Error(c, apperr.Wrap(apperr.KindValidation, "invalid request: "+err.Error(), err))
	return false
}

func isChargeLevelError(err error) bool {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if strings.HasSuffix(fe.Field(), "ChargeLevel") {
				return true
			}
		}
	}
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr) && strings.HasSuffix(typeErr.Field, "charge_level")
}
