package code

import (
	"fmt"
	"net/http"
	"strings"
)

// Code is a bilingual status value; error codes also satisfy the error interface
// Code 双语状态码，错误码同时实现 error 接口
type Code struct {
	// 状态码
	code int
	// 是否成功
	status bool
	// 文案
	Lang lang
	// 附加数据
	data     interface{}
	haveData bool
	// 错误详情
	details     []string
	haveDetails bool
}

var (
	codes     = map[int]string{}
	sussCodes = map[int]string{}
)

// NewError registers an error code, duplicated numbers panic at init time
// NewError 注册错误码，重复的编号会在初始化时 panic
func NewError(code int, l lang) *Code {
	if _, ok := codes[code]; ok {
		panic(fmt.Sprintf("错误码 %d 已经存在，请更换一个", code))
	}
	codes[code] = l.en
	return &Code{code: code, status: false, Lang: l}
}

// NewSuss registers a success code
// NewSuss 注册成功码
func NewSuss(code int, l lang) *Code {
	if _, ok := sussCodes[code]; ok {
		panic(fmt.Sprintf("成功码 %d 已经存在，请更换一个", code))
	}
	sussCodes[code] = l.en
	return &Code{code: code, status: true, Lang: l}
}

// Clone returns a detached copy so package level codes are never mutated
// Clone 返回独立副本，包级别的码值不会被修改
func (e *Code) Clone() *Code {
	return &Code{
		code:   e.code,
		status: e.status,
		Lang:   e.Lang,
	}
}

func (e *Code) Error() string {
	if e.haveDetails && len(e.details) > 0 {
		return e.Msg() + ": " + strings.Join(e.details, ", ")
	}
	return e.Msg()
}

// Is matches any Code carrying the same number, so errors.Is works on clones
// Is 按编号匹配，errors.Is 对副本同样生效
func (e *Code) Is(target error) bool {
	t, ok := target.(*Code)
	if !ok {
		return false
	}
	return t.code == e.code
}

func (e *Code) Code() int {
	return e.code
}

func (e *Code) Status() bool {
	return e.status
}

func (e *Code) Msg() string {
	return e.Lang.GetMessage()
}

func (e *Code) Details() []string {
	return e.details
}

func (e *Code) Data() interface{} {
	return e.data
}

func (e *Code) HaveDetails() bool {
	return e.haveDetails
}

func (e *Code) HaveData() bool {
	return e.haveData
}

// WithData attaches response data to a copy
// WithData 在副本上附加数据
func (e *Code) WithData(data interface{}) *Code {
	c := e.Clone()
	c.details, c.haveDetails = e.details, e.haveDetails
	c.haveData = true
	c.data = data
	return c
}

// WithDetails attaches details to a copy
// WithDetails 在副本上附加详情
func (e *Code) WithDetails(details ...string) *Code {
	c := e.Clone()
	c.data, c.haveData = e.data, e.haveData
	c.haveDetails = true
	c.details = append([]string{}, details...)
	return c
}

// StatusCode maps the code to an HTTP status, business errors stay in the body
// StatusCode 映射 HTTP 状态，业务错误通过响应体返回
func (e *Code) StatusCode() int {
	switch e.code {
	case ErrorNotUserAuthToken.code, ErrorInvalidUserAuthToken.code:
		return http.StatusUnauthorized
	case ErrorTooManyRequests.code:
		return http.StatusTooManyRequests
	case ErrorRouteNotFound.code:
		return http.StatusNotFound
	case ErrorRequestTimeout.code:
		return http.StatusGatewayTimeout
	}
	return http.StatusOK
}
