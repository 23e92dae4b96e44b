package util

import "strings"

// StripCodeFences снимает обёртку ```lang ... ``` вокруг ответа модели.
// Текст без открывающего ``` возвращается только с обрезанными пробелами.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	body, ok := strings.CutPrefix(s, "```")
	if !ok {
		return s
	}
	// первая строка после ``` — метка языка, если в ней нет начала JSON
	if i := strings.IndexByte(body, '\n'); i >= 0 && !strings.ContainsAny(body[:i], "{[") {
		body = body[i+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
