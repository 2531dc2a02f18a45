package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// SupportedExtensions are the file types the indexer picks up by default.
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".txt", ".md", ".json", ".csv"}

var (
	xmlTagRe      = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	slideNumberRe = regexp.MustCompile(`slide(\d+)\.xml$`)
)

// ExtractText returns the plain text of a file based on its extension.
// Unknown extensions are decoded as UTF-8 on a best-effort basis.
func ExtractText(data []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return parsePDF(data)
	case ".docx":
		return parseDOCX(data)
	case ".pptx":
		return parsePPTX(data)
	case ".xlsx":
		return parseXLSX(data)
	case ".xlsm", ".xltx", ".xltm":
		return parseWorkbook(data)
	case ".md", ".markdown":
		return parseMarkdown(data), nil
	default:
		return parseText(data), nil
	}
}

// NormalizeWhitespace collapses every whitespace run into one space and trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// IsSupported reports whether filename has one of the given extensions.
func IsSupported(filename string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	return xmlToText(r.Editable().GetContent(), "</w:p>"), nil
}

func parsePPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pptx: %w", err)
	}

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range zr.File {
		m := slideNumberRe.FindStringSubmatch(file.Name)
		if m == nil || !strings.HasPrefix(file.Name, "ppt/slides/") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, text: xmlToText(string(content), "</a:p>")})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sb strings.Builder
	for _, s := range slides {
		sb.WriteString(s.text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func parseXLSX(data []byte) (string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx: %w", err)
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		sb.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				sb.WriteString(cell.String() + "\t")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func parseWorkbook(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				sb.WriteString(cell + "\t")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// parseMarkdown keeps the readable text of a markdown document and drops its
// markup. Link and image destinations are kept as "text (url)" so citations
// survive extraction.
func parseMarkdown(data []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(data))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch node := n.(type) {
			case *ast.Link:
				writeDestination(&sb, node.Destination)
			case *ast.Image:
				writeDestination(&sb, node.Destination)
			}
			if n.Type() == ast.TypeBlock {
				sb.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.AutoLink:
			sb.Write(node.URL(data))
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(node.Segment.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteString(" ")
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(data))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func writeDestination(sb *strings.Builder, dest []byte) {
	if len(dest) == 0 || dest[0] == '#' {
		return
	}
	sb.WriteString(" (")
	sb.Write(dest)
	sb.WriteString(")")
}

func parseText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

// xmlToText turns office XML into text, one line per paragraph.
func xmlToText(xmlContent, paragraphEnd string) string {
	withBreaks := strings.ReplaceAll(xmlContent, paragraphEnd, paragraphEnd+"\n")
	return html.UnescapeString(xmlTagRe.ReplaceAllString(withBreaks, ""))
}
