package routes

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"luxe-escrow-server/middleware"
	"luxe-escrow-server/services"
)

var kindStatus = map[services.Kind]int{
	services.KindValidation:   http.StatusBadRequest,
	services.KindNotFound:     http.StatusNotFound,
	services.KindForbidden:    http.StatusForbidden,
	services.KindInvalidState: http.StatusBadRequest,
	services.KindConflict:     http.StatusConflict,
	services.KindUpstream:     http.StatusInternalServerError,
	services.KindInternal:     http.StatusInternalServerError,
}

// respondError writes {"error": message} with the status for the error's kind.
func respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": services.MessageOf(err)})
}

// bindJSON decodes and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
		return false
	}
	return true
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "currency":
			msgs = append(msgs, field+" must be a 3-letter ISO code")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// allowCaller answers 403 unless the authenticated caller may act as userID.
func allowCaller(c *gin.Context, field, userID string) bool {
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " is required"})
		return false
	}
	if middleware.CallerMatches(c, userID) {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "You can only act on your own account"})
	return false
}
