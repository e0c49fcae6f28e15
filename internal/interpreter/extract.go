package interpreter

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON 模型回复中找不到 JSON 对象
var ErrNoJSON = errors.New("no JSON object found in model reply")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ExtractJSON 从模型回复中取出 JSON 对象
// 优先使用 ``` 代码块，其次是第一个括号配平的 {...}
func ExtractJSON(reply string) ([]byte, error) {
	for _, m := range fencedBlock.FindAllStringSubmatch(reply, -1) {
		body := strings.TrimSpace(m[1])
		if obj, ok := firstObject(body); ok {
			return obj, nil
		}
	}
	if obj, ok := firstObject(reply); ok {
		return obj, nil
	}
	return nil, ErrNoJSON
}

// firstObject 扫描首个配平且合法的 {...}，忽略字符串内的括号
func firstObject(s string) ([]byte, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > start {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return []byte(candidate), true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
