package code

import (
	"errors"
)

// lang stores the English and Chinese text of a code
// lang 存储码值的英文和中文文案
type lang struct {
	en    string // English // 英文
	zh_cn string // Chinese // 中文
}

// FALLBACK_LNG is used when the selected language has no text
// FALLBACK_LNG 所选语言缺少文案时使用
const FALLBACK_LNG = "en"

var lng = FALLBACK_LNG

var supportedLanguages = []string{"en", "zh_cn"}

// GetMessage returns the text for the global language
// GetMessage 返回全局语言对应的文案
func (l lang) GetMessage() string {
	switch lng {
	case "zh_cn":
		if l.zh_cn != "" {
			return l.zh_cn
		}
	}
	return l.en
}

// GetSupportedLanguages returns the language keys accepted by SetGlobalDefaultLang
// GetSupportedLanguages 返回可设置的语言列表
func GetSupportedLanguages() []string {
	out := make([]string, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// SetGlobalDefaultLang sets the global language, unknown values fall back to English
// SetGlobalDefaultLang 设置全局语言，未知值回退为英文
func SetGlobalDefaultLang(language string) error {
	for _, l := range supportedLanguages {
		if l == language {
			lng = language
			return nil
		}
	}
	lng = FALLBACK_LNG
	return errors.New("unsupported language type, set defaulting to " + FALLBACK_LNG)
}

// GetGlobalDefaultLang 获取全局语言
func GetGlobalDefaultLang() string {
	return lng
}
