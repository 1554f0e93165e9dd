package markdown

import (
	"fmt"
	"strings"

	"github.com/starford/craftmd/internal/models"
)

const (
	separator      = "---"
	subpageTag     = "#subpage"
	otherLanguage  = "other"
	subpageHeading = 3
)

func heading(level int, text string) string {
	return strings.Repeat("#", level) + " " + text
}

func listItem(text string, indent int, style models.ListStyle, checked bool, counter int) string {
	marker := "-"
	if style == models.ListNumbered {
		marker = fmt.Sprintf("%d.", counter)
	}
	check := ""
	if style == models.ListTodo {
		check = " [ ]"
		if checked {
			check = " [x]"
		}
	}
	return strings.Repeat(" ", indent*4) + marker + check + " " + text
}

func codeBlock(content, language string) string {
	if language == otherLanguage {
		language = ""
	}
	return "```" + language + "\n" + content + "\n```"
}

func link(label, target string) string {
	return "[" + label + "](" + target + ")"
}

func image(filename, relPath string) string {
	return "![" + filename + "](" + strings.ReplaceAll(relPath, " ", "%20") + ")"
}
