// Package validator adapts go-playground/validator to gin's binding and translates its errors
// Package validator 将 go-playground/validator 接入 gin binding 并翻译校验错误
package validator

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
)

// collectionPattern 集合名: 字母开头，字母数字下划线，最长 64
var collectionPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// CustomValidator implements gin's binding.StructValidator
// CustomValidator 实现 gin 的 binding.StructValidator
type CustomValidator struct {
	once     sync.Once
	Validate *validator.Validate
	uni      *ut.UniversalTranslator
	initErr  error
}

// Default 进程内共享的校验器
var Default = NewCustomValidator()

// NewCustomValidator 创建校验器，首次使用时初始化
func NewCustomValidator() *CustomValidator {
	return &CustomValidator{}
}

// ValidateStruct 校验结构体，非结构体直接通过
func (v *CustomValidator) ValidateStruct(obj any) error {
	if kindOfData(obj) != reflect.Struct {
		return nil
	}
	v.lazyinit()
	if v.initErr != nil {
		return v.initErr
	}
	return v.Validate.Struct(obj)
}

// Engine 返回底层 *validator.Validate
func (v *CustomValidator) Engine() any {
	v.lazyinit()
	return v.Validate
}

// Translator returns the translator matching the global code language
// Translator 返回与全局语言一致的翻译器
func (v *CustomValidator) Translator() ut.Translator {
	v.lazyinit()
	locale := "en"
	if code.GetGlobalDefaultLang() == "zh_cn" {
		locale = "zh"
	}
	trans, _ := v.uni.GetTranslator(locale)
	return trans
}

func (v *CustomValidator) lazyinit() {
	v.once.Do(func() {
		validate := validator.New()
		validate.SetTagName("binding")

		// 错误中使用 json 字段名
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "uri", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})

		if err := validate.RegisterValidation("collection", func(fl validator.FieldLevel) bool {
			return collectionPattern.MatchString(fl.Field().String())
		}); err != nil {
			v.initErr = err
		}

		v.uni = ut.New(en.New(), en.New(), zh.New())
		enTran, _ := v.uni.GetTranslator("en")
		zhTran, _ := v.uni.GetTranslator("zh")
		if err := en_translations.RegisterDefaultTranslations(validate, enTran); err != nil && v.initErr == nil {
			v.initErr = err
		}
		if err := zh_translations.RegisterDefaultTranslations(validate, zhTran); err != nil && v.initErr == nil {
			v.initErr = err
		}
		registerTagMessage(validate, enTran, "collection", "{0} must start with a letter and contain only letters, digits or underscores")
		registerTagMessage(validate, zhTran, "collection", "{0}必须以字母开头，且只能包含字母、数字或下划线")

		v.Validate = validate
	})
}

func registerTagMessage(validate *validator.Validate, trans ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, err := ut.T(tag, fe.Field())
			if err != nil {
				return fe.Error()
			}
			return msg
		})
}

func kindOfData(data any) reflect.Kind {
	value := reflect.ValueOf(data)
	kind := value.Kind()
	if kind == reflect.Ptr {
		kind = value.Elem().Kind()
	}
	return kind
}
