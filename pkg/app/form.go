package app

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	pkgvalidator "github.com/haierkeys/onyx-note-sync/pkg/validator"
)

// ValidError 单个字段的校验错误
type ValidError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

type ValidErrors []*ValidError

func (v *ValidError) Error() string {
	return v.Message
}

func (v ValidErrors) Error() string {
	return strings.Join(v.Errors(), ",")
}

// Errors 返回全部错误文案
func (v ValidErrors) Errors() []string {
	var errs []string
	for _, err := range v {
		errs = append(errs, err.Error())
	}
	return errs
}

// BindAndValid binds the JSON body into obj and validates its binding tags
// BindAndValid 绑定 JSON 请求体并按 binding 标签校验
func BindAndValid(c *gin.Context, obj any) (bool, ValidErrors) {
	return translateBindError(c.ShouldBindWith(obj, binding.JSON))
}

// BindURIAndValid 绑定并校验路径参数
func BindURIAndValid(c *gin.Context, obj any) (bool, ValidErrors) {
	return translateBindError(c.ShouldBindUri(obj))
}

func translateBindError(err error) (bool, ValidErrors) {
	if err == nil {
		return true, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false, ValidErrors{{Key: "body", Message: err.Error()}}
	}
	trans := pkgvalidator.Default.Translator()
	errs := make(ValidErrors, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, &ValidError{Key: fe.Field(), Message: fe.Translate(trans)})
	}
	return false, errs
}
