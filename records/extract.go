// CLAUDE:SUMMARY Readable-text extraction from record content: sanitized HTML to Markdown, PDF page text, plain text, with a completeness ratio.
package records

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Supported content formats.
const (
	FormatHTML = "html"
	FormatPDF  = "pdf"
	FormatText = "text"
)

const maxTitleLen = 200

// Extraction is the readable form of one record's content. Completeness is
// extracted bytes over source bytes, clamped to [0,1]; values near zero
// flag extractions that lost most of the document.
type Extraction struct {
	Format       string  `json:"format"`
	Title        string  `json:"title,omitempty"`
	Text         string  `json:"text"`
	Pages        int     `json:"pages,omitempty"`
	Completeness float64 `json:"completeness"`
}

// Extractor turns raw record content into readable text. Construct one per
// client; it is safe for concurrent use.
type Extractor struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewExtractor builds an Extractor with the UGC sanitize policy and a
// CommonMark converter with table support.
func NewExtractor() *Extractor {
	return &Extractor{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract dispatches on the content type and returns the readable form.
func (e *Extractor) Extract(data []byte, contentType string) (*Extraction, error) {
	format, err := detectFormat(contentType, data)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatHTML:
		return e.extractHTML(data)
	case FormatPDF:
		return extractPDF(data)
	default:
		return extractText(data)
	}
}

// detectFormat maps a media type to a supported format, sniffing the bytes
// when the type is missing or unhelpful.
func detectFormat(contentType string, data []byte) (string, error) {
	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if mediaType == "" || mediaType == "application/octet-stream" {
		if bytes.HasPrefix(data, []byte("%PDF-")) {
			return FormatPDF, nil
		}
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return FormatHTML, nil
	case mediaType == "application/pdf":
		return FormatPDF, nil
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/json",
		mediaType == "application/xml":
		return FormatText, nil
	default:
		return "", fmt.Errorf("records: unsupported content type %q", contentType)
	}
}

// --- HTML ---

// extractHTML sanitizes the document and converts it to Markdown. The
// title comes from the original bytes; the sanitizer strips head elements.
func (e *Extractor) extractHTML(data []byte) (*Extraction, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("records: parse HTML: %w", err)
	}
	title := htmlTitle(doc)

	clean := e.policy.SanitizeBytes(data)
	text, err := e.conv.ConvertString(string(clean))
	if err != nil || strings.TrimSpace(text) == "" {
		// Conversion failed or produced nothing; fall back to bare text.
		text = nodeText(doc)
	}
	text = strings.TrimSpace(text)

	return &Extraction{
		Format:       FormatHTML,
		Title:        title,
		Text:         text,
		Completeness: completeness(len(text), len(data)),
	}, nil
}

// htmlTitle returns the title element's text, or the first h1 when there
// is none.
func htmlTitle(doc *html.Node) string {
	if t := findElementText(doc, atom.Title); t != "" {
		return clipTitle(t)
	}
	return clipTitle(findElementText(doc, atom.H1))
}

func findElementText(n *html.Node, a atom.Atom) string {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return strings.TrimSpace(nodeText(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findElementText(c, a); t != "" {
			return t
		}
	}
	return ""
}

// nodeText collects visible text from a node subtree, skipping script and
// style.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// --- PDF ---

// extractPDF pulls text out of each page's content stream. Scanned PDFs
// with no text operators fail; they need OCR, which this system does not
// do.
func extractPDF(data []byte) (*Extraction, error) {
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("records: read PDF: %w", err)
	}

	var pages []string
	var title string
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		text := pdfPageText(pdfCtx, pageNr)
		if text == "" {
			continue
		}
		if title == "" {
			title = clipTitle(firstLine(text))
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("records: no extractable text in PDF (%d pages)", pdfCtx.PageCount)
	}

	text := strings.Join(pages, "\n\n")
	return &Extraction{
		Format:       FormatPDF,
		Title:        title,
		Text:         text,
		Pages:        pdfCtx.PageCount,
		Completeness: completeness(len(text), len(data)),
	}, nil
}

func pdfPageText(pdfCtx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
	if err != nil {
		return ""
	}
	stream, err := io.ReadAll(r)
	if err != nil || len(stream) == 0 {
		return ""
	}
	return parseContentStream(stream)
}

// pdfLiteralRe matches PDF string literals, including escaped parentheses
// inside them.
var pdfLiteralRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// parseContentStream walks the page's operators and keeps the text-showing
// ones: Tj and TJ show strings, ' shows on the next line, T* moves to the
// next line, Td/TD reposition.
func parseContentStream(stream []byte) string {
	var sb strings.Builder
	appendLiterals := func(line []byte) {
		for _, m := range pdfLiteralRe.FindAllSubmatch(line, -1) {
			sb.WriteString(decodePDFLiteral(m[1]))
		}
	}

	for _, line := range bytes.Split(stream, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			appendLiterals(line)
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			sb.WriteByte('\n')
			appendLiterals(line)
		case bytes.Equal(line, []byte("T*")):
			sb.WriteByte('\n')
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
	}
	return tidyText(sb.String())
}

// decodePDFLiteral resolves the escape sequences a PDF string literal can
// carry, including octal byte codes.
func decodePDFLiteral(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(c)
		default:
			if c < '0' || c > '7' {
				sb.WriteByte(c)
				break
			}
			val := int(c - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}

// --- plain text ---

func extractText(data []byte) (*Extraction, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("records: content is not valid UTF-8")
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSpace(text)

	return &Extraction{
		Format:       FormatText,
		Title:        clipTitle(firstLine(text)),
		Text:         text,
		Completeness: completeness(len(text), len(data)),
	}, nil
}

// --- shared helpers ---

var (
	spaceRunRe = regexp.MustCompile(`[ \t]+`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// tidyText collapses space runs and excess blank lines, keeping line
// structure intact.
func tidyText(text string) string {
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func clipTitle(s string) string {
	runes := []rune(s)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen])
	}
	return s
}

func completeness(extracted, source int) float64 {
	if source == 0 {
		return 0
	}
	r := float64(extracted) / float64(source)
	if r > 1 {
		return 1
	}
	return r
}
