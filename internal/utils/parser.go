package utils

import (
	"strings"
	"time"
)

const tmdbDateLayout = "2006-01-02"

// ParseDate 解析 TMDB 的日期字符串（yyyy-mm-dd），空串或格式错误返回 nil
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(tmdbDateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// ImageURL 拼接 TMDB 图片地址，path 为空时返回空串
func ImageURL(base, path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
