package logging

import (
	"regexp"
)

var (
	// DSN / URL 内のパスワード
	userinfoPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@/\s]+)@`)

	// フィードURLのクエリに含まれるトークン類
	querySecretPattern = regexp.MustCompile(`(?i)([?&](?:token|access_token|api_key|apikey|key|secret|password)=)[^&\s"]+`)
)

// SanitizeError は機密情報をマスクしたエラーメッセージを返す
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString masks passwords in DSNs and credentials in URL query strings.
func SanitizeString(msg string) string {
	msg = userinfoPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = querySecretPattern.ReplaceAllString(msg, "${1}****")
	return msg
}
