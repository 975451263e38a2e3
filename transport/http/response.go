package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kochabx/kais/errors"
)

const (
	defaultSuccessMsg = "success"
	defaultErrorMsg   = "operation failed"

	successCode = http.StatusOK
)

// Response 统一的 JSON 响应结构
type Response[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data T      `json:"data,omitempty"`
}

// GinJSON 写入成功响应
//
//	GinJSON(c, view)
//	// {"code":200, "msg":"success", "data":{...}}
func GinJSON(c *gin.Context, data any) {
	if c == nil {
		return
	}
	c.JSON(http.StatusOK, Success(data))
}

// GinJSONE 写入错误响应，HTTP 状态码取自 code
//
// data 为 error 时优先使用结构化错误的消息，为 string 时直接作为消息，
// 为 nil 时使用默认消息，其他类型作为 data 返回
func GinJSONE(c *gin.Context, code int, data any) {
	if c == nil {
		return
	}

	resp := &Response[any]{Code: code}
	switch v := data.(type) {
	case error:
		resp.Msg = errors.FromError(v).Message
	case string:
		resp.Msg = v
	case nil:
		resp.Msg = defaultErrorMsg
	default:
		resp.Data = v
	}

	status := code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, resp)
}

// Success 创建成功响应
func Success[T any](data T) *Response[T] {
	return &Response[T]{
		Code: successCode,
		Msg:  defaultSuccessMsg,
		Data: data,
	}
}

// Failure 创建失败响应
func Failure(code int, msg string) *Response[any] {
	return &Response[any]{
		Code: code,
		Msg:  msg,
	}
}
