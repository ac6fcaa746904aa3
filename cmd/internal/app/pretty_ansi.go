package app

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

const (
	defaultTerminalWidth = 100
	minTerminalWidth     = 40
	ellipsis             = "…"
)

var ansiRe = regexp.MustCompile("\x1b\\[[0-9;]*m")

func applyColor(code, s string, color bool) string {
	if !color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func applyDim(s string, color bool) string  { return applyColor(ansiDim, s, color) }
func applyBold(s string, color bool) string { return applyColor(ansiBright, s, color) }

func colorizeHTTPMethod(m string, color bool) string {
	switch m {
	case "GET", "HEAD":
		return applyColor(ansiBlue, m, color)
	case "POST":
		return applyColor(ansiGreen, m, color)
	case "PUT", "PATCH":
		return applyColor(ansiYellow, m, color)
	case "DELETE":
		return applyColor(ansiRed, m, color)
	default:
		return applyColor(ansiMagenta, m, color)
	}
}

func colorizeStatusCode(code int, color bool) string {
	return colorizeStatusClass(statusClass(code), color, strconv.Itoa(code))
}

// colorizeStatusClass colors text (the class itself when absent) by an
// "Nxx" status class.
func colorizeStatusClass(class string, color bool, text ...string) string {
	s := class
	if len(text) > 0 {
		s = text[0]
	}
	switch class {
	case "2xx":
		return applyColor(ansiGreen, s, color)
	case "3xx":
		return applyColor(ansiCyan, s, color)
	case "4xx":
		return applyColor(ansiYellow, s, color)
	case "5xx":
		return applyColor(ansiRed, s, color)
	default:
		return s
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return applyColor(ansiRed, s, color)
	case ms >= 250:
		return applyColor(ansiYellow, s, color)
	default:
		return applyDim(s, color)
	}
}

func colorizeResult(result string, color bool) string {
	switch result {
	case "success":
		return applyColor(ansiGreen, result, color)
	case "redirect":
		return applyColor(ansiCyan, result, color)
	case "client_error":
		return applyColor(ansiYellow, result, color)
	case "server_error":
		return applyColor(ansiRed, result, color)
	default:
		return result
	}
}

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// visualLen is the printed width of s in runes, escapes excluded.
func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// wrapSegments packs segs joined by sep into lines no wider than width.
// Continuation lines start with indent. A segment that cannot fit on a line
// of its own is cut and marked with an ellipsis. A non-positive width
// disables wrapping.
func wrapSegments(segs []string, sep string, width int, indent string) []string {
	if width <= 0 {
		return []string{strings.Join(segs, sep)}
	}

	var lines []string
	var cur strings.Builder
	curLen := 0

	for _, seg := range segs {
		prefix, prefixLen := sep, visualLen(sep)
		if curLen == 0 {
			prefix, prefixLen = "", 0
			if len(lines) > 0 {
				prefix, prefixLen = indent, visualLen(indent)
			}
		}

		segLen := visualLen(seg)
		if curLen > 0 && curLen+prefixLen+segLen > width {
			lines = append(lines, cur.String())
			cur.Reset()
			curLen = 0
			prefix, prefixLen = indent, visualLen(indent)
		}
		if room := width - curLen - prefixLen; segLen > room {
			seg = truncateVisual(seg, room)
			segLen = visualLen(seg)
		}

		cur.WriteString(prefix)
		cur.WriteString(seg)
		curLen += prefixLen + segLen
	}
	if curLen > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// truncateVisual cuts s to n visible runes, the last being an ellipsis.
// Colors are dropped from truncated segments.
func truncateVisual(s string, n int) string {
	if n <= 0 {
		return ""
	}
	plain := []rune(stripANSI(s))
	if len(plain) <= n {
		return string(plain)
	}
	return string(plain[:n-1]) + ellipsis
}

// terminalWidth is TODOLIST_LOG_WIDTH, else COLUMNS, else 100. Values below
// 40 are ignored.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"TODOLIST_LOG_WIDTH", "COLUMNS"} {
		n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
		if err == nil && n >= minTerminalWidth {
			return n
		}
	}
	return defaultTerminalWidth
}
