package common

import "github.com/gin-gonic/gin"

// Business error codes carried in the response envelope.
const (
	CodeBadRequest = 40000
	CodeNotFound   = 40400
	CodeConflict   = 40900
	CodeInternal   = 50000
)

// OK writes the standard success envelope.
func OK(c *gin.Context, data any) {
	c.JSON(200, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

// Fail writes the standard error envelope. msg must never contain
// credentials or internal error chains; log those server-side instead.
func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}
