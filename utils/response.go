// file: utils/response.go
package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CodeOK 业务成功码，非零值为各模块自定义的业务错误码
const CodeOK = 0

// Response 统一响应包体
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func write(c *gin.Context, code int, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: code, Msg: msg, Data: data})
}

func Success(c *gin.Context, msg string, data interface{}) {
	write(c, CodeOK, msg, data)
}

func Error(c *gin.Context, code int, msg string) {
	write(c, code, msg, nil)
}
