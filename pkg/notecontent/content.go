// Package notecontent inspects the shape of note bodies without interpreting them
// Package notecontent 识别笔记内容的结构，不解释其含义
package notecontent

import (
	"strings"

	"github.com/bytedance/sonic"
)

// legacyBlock one element of the old block-array body format
// legacyBlock 旧版块数组格式中的单个元素
type legacyBlock struct {
	ID      *string `json:"id"`
	Type    *string `json:"type"`
	Content *string `json:"content"`
}

// Envelope encrypted body produced by the encryption gate, treated as opaque
// Envelope 加密网关生成的密文结构，视为不透明内容
type Envelope struct {
	IV   string `json:"iv"`
	Salt string `json:"salt"`
	Data string `json:"data"`
}

// FlattenLegacy unwraps the old `[{"id","type","content"}]` body into plain text.
// One block yields its content as is, several blocks are joined with a newline.
// Anything else, envelopes included, is returned unchanged.
// FlattenLegacy 将旧版块数组内容展开为纯文本，其他内容原样返回
func FlattenLegacy(content string) string {
	blocks, ok := parseLegacy(content)
	if !ok {
		return content
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, *b.Content)
	}
	return strings.Join(parts, "\n")
}

// IsLegacy reports whether content uses the block-array format
// IsLegacy 判断内容是否为旧版块数组格式
func IsLegacy(content string) bool {
	_, ok := parseLegacy(content)
	return ok
}

func parseLegacy(content string) ([]legacyBlock, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var blocks []legacyBlock
	if err := sonic.UnmarshalString(trimmed, &blocks); err != nil || len(blocks) == 0 {
		return nil, false
	}
	for _, b := range blocks {
		if b.ID == nil || b.Type == nil || b.Content == nil {
			return nil, false
		}
	}
	return blocks, true
}

// IsEnvelope reports whether content is an `{iv,salt,data}` ciphertext envelope
// IsEnvelope 判断内容是否为 `{iv,salt,data}` 密文信封
func IsEnvelope(content string) bool {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var probe map[string]interface{}
	if err := sonic.UnmarshalString(trimmed, &probe); err != nil {
		return false
	}
	for _, k := range []string{"iv", "salt", "data"} {
		if _, ok := probe[k].(string); !ok {
			return false
		}
	}
	return true
}

// ForTransmission prepares a local body for the remote store
// ForTransmission 生成发送到远端的内容
func ForTransmission(content string) string {
	if IsEnvelope(content) {
		return content
	}
	return FlattenLegacy(content)
}
