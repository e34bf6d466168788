package textfmt

import (
	"html/template"
	"strings"
)

// Format converts plain quest text to HTML. Blank lines separate
// paragraphs and single newlines become line breaks; everything else is
// escaped. Bare http(s) URLs are linked and open in a new tab.
func Format(s string) template.HTML {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	for i, para := range strings.Split(s, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("<p>")
		for j, line := range strings.Split(para, "\n") {
			if j > 0 {
				b.WriteString("<br>")
			}
			writeLine(&b, line)
		}
		b.WriteString("</p>")
	}
	return template.HTML(b.String())
}

// writeLine escapes line, linking any http(s) URL tokens.
func writeLine(b *strings.Builder, line string) {
	rest := line
	for rest != "" {
		i := urlStart(rest)
		if i < 0 {
			b.WriteString(template.HTMLEscapeString(rest))
			return
		}
		b.WriteString(template.HTMLEscapeString(rest[:i]))
		rest = rest[i:]
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		url := strings.TrimRight(rest[:end], ".,;:!?)")
		esc := template.HTMLEscapeString(url)
		b.WriteString(`<a href="` + esc + `" target="_blank" rel="noopener noreferrer">` + esc + `</a>`)
		rest = rest[len(url):]
	}
}

func urlStart(s string) int {
	i := strings.Index(s, "http://")
	j := strings.Index(s, "https://")
	switch {
	case i < 0:
		return j
	case j < 0:
		return i
	}
	return min(i, j)
}

// Plain flattens quest text to a single line for titles and search.
func Plain(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
