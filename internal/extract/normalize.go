// Package extract turns registry filing documents into atomic facts. The
// entry point is the visual text normalizer, which flattens non-semantic
// EDGAR HTML into a stable text buffer; the pattern and table extractors
// operate on that buffer only.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Block-level elements that create visual breaks. EDGAR HTML rarely uses
// semantic <p> structure, so the walker keys off the full block set.
var blockElements = map[string]bool{
	"div": true, "p": true, "tr": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "thead": true, "tbody": true, "tfoot": true,
	"section": true, "article": true, "header": true, "footer": true,
	"aside": true, "nav": true, "blockquote": true, "pre": true, "hr": true,
	"address": true, "figcaption": true, "figure": true, "main": true,
	"dd": true, "dt": true, "dl": true,
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"head": true, "meta": true, "link": true, "title": true,
}

var charReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"–", "-", "—", "-", "―", "-", "‒", "-",
	" ", " ", " ", " ", " ", " ", " ", " ", " ", " ",
	"\u200B", "", "\uFEFF", "",
)

var (
	spaceRunRE   = regexp.MustCompile(`[ \t]+`)
	newlineRunRE = regexp.MustCompile(`\n{3,}`)
	nlPaddingRE  = regexp.MustCompile(` *\n *`)
)

// cellTerminators are trailing characters after which a table cell does not
// need an explicit " | " separator.
const cellTerminators = ".!?;:\n|"

// VisualText flattens raw EDGAR HTML into normalized plain text. Block
// boundaries become paragraph breaks and table cells are separated with
// " | " so adjacent party names never fuse.
func VisualText(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	w := &textWalker{buf: &buf}
	for _, node := range doc.Selection.Nodes {
		w.walk(node)
	}
	return Normalize(buf.String()), nil
}

// Normalize applies character and whitespace normalization to already
// extracted text. It is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	text = charReplacer.Replace(text)
	text = spaceRunRE.ReplaceAllString(text, " ")
	text = newlineRunRE.ReplaceAllString(text, "\n\n")
	text = nlPaddingRE.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// Preamble returns the first maxChars of the visual text, the region where
// agreement preambles and party lists live.
func Preamble(visualText string, maxChars int) string {
	if maxChars <= 0 || len(visualText) <= maxChars {
		return visualText
	}
	return visualText[:maxChars]
}

type textWalker struct {
	buf          *strings.Builder
	lastWasBlock bool
}

func (w *textWalker) walk(node *html.Node) {
	switch node.Type {
	case html.TextNode:
		if strings.TrimSpace(node.Data) != "" {
			w.buf.WriteString(node.Data)
			w.lastWasBlock = false
		}
		return
	case html.ElementNode:
	case html.DocumentNode:
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			w.walk(child)
		}
		return
	default:
		return
	}

	name := strings.ToLower(node.Data)
	if skippedElements[name] {
		return
	}

	switch name {
	case "br":
		w.buf.WriteString("\n")
		w.lastWasBlock = false
		return
	case "td", "th":
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			w.walk(child)
		}
		w.writeCellSeparator()
		return
	case "tr":
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			w.walk(child)
		}
		w.buf.WriteString("\n")
		w.lastWasBlock = true
		return
	}

	isBlock := blockElements[name]
	if isBlock && !w.lastWasBlock {
		w.buf.WriteString("\n\n")
		w.lastWasBlock = true
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		w.walk(child)
	}

	if isBlock && !w.lastWasBlock {
		w.buf.WriteString("\n\n")
		w.lastWasBlock = true
	}
}

func (w *textWalker) writeCellSeparator() {
	trimmed := strings.TrimRight(w.buf.String(), " \t")
	if trimmed == "" {
		return
	}
	if strings.ContainsRune(cellTerminators, rune(trimmed[len(trimmed)-1])) {
		return
	}
	w.buf.WriteString(" | ")
}
