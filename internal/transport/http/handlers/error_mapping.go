package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mmudassir0/ecommerce-auth/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response payload.
type ErrorCase struct {
	Err     error
	Status  int
	Kind    string
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var lockErr *usecase.AccountLockedError
	if errors.As(err, &lockErr) {
		respondAccountLocked(c, lockErr)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			resp := NewErrorResponse(c, cs.Message)
			resp.Kind = cs.Kind
			c.JSON(cs.Status, resp)
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// respondAccountLocked emits 423 with a Retry-After hint derived from the remaining lock window.
func respondAccountLocked(c *gin.Context, lockErr *usecase.AccountLockedError) {
	seconds := int(math.Ceil(lockErr.Remaining.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	c.Header("Retry-After", strconv.Itoa(seconds))

	resp := NewErrorResponse(c, lockErr.Error())
	resp.Kind = "account_locked"
	c.JSON(http.StatusLocked, resp)
}
