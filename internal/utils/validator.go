package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateIdentifier 校验路径参数中的ID（uuid 或短标识）
func ValidateIdentifier(id string) bool {
	return identifierRegex.MatchString(id)
}

// SanitizeString 清理字符串
func SanitizeString(input string) string {
	// 去除首尾空格
	input = strings.TrimSpace(input)
	// 去除控制字符
	input = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, input)
	return input
}

// ValidateMessageContent 清理消息内容并校验长度，返回清理后的内容
func ValidateMessageContent(content string, maxLen int) (string, bool) {
	cleaned := SanitizeString(content)
	if cleaned == "" {
		return "", false
	}
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		return cleaned, false
	}
	return cleaned, true
}
