package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/schoolware/course-admin-api/internal/models"
	appErrors "github.com/schoolware/course-admin-api/pkg/errors"
)

// ListEnvelope wraps paginated collections.
type ListEnvelope struct {
	Meta models.ListMeta `json:"meta"`
	Data interface{}     `json:"data"`
}

// JSON sends a success response with the payload as the body.
func JSON(c *gin.Context, status int, data interface{}) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, data)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data)
}

// List sends a paginated collection with its metadata.
func List(c *gin.Context, meta models.ListMeta, data interface{}) {
	JSON(c, http.StatusOK, ListEnvelope{Meta: meta, Data: data})
}

// Message sends a plain confirmation body.
func Message(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{"message": msg})
}

// Error converts the error to the common error contract. Not-found errors
// use the message body shape, everything else the error body shape.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	if appErr.Code == appErrors.ErrNotFound.Code {
		c.JSON(appErr.Status, gin.H{"message": appErr.Message})
		return
	}
	c.JSON(appErr.Status, gin.H{"error": appErr.Message})
}
