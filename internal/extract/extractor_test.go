package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/sakuin/internal/models"
	"github.com/xuri/excelize/v2"
)

// zipOf builds a package from name/content pairs, in the given order.
func zipOf(t *testing.T, members ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i := 0; i+1 < len(members); i += 2 {
		fw, err := w.Create(members[i])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(members[i+1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func extractBytes(t *testing.T, content []byte, ext string) *Document {
	t.Helper()
	doc, err := NewExtractor().ExtractBytes(content, ext)
	if err != nil {
		t.Fatalf("ExtractBytes(%s): %v", ext, err)
	}
	return doc
}

func checkPages(t *testing.T, doc *Document, want []models.Page) {
	t.Helper()
	if len(doc.Pages) != len(want) {
		t.Fatalf("pages = %+v, want %+v", doc.Pages, want)
	}
	for i := range want {
		if doc.Pages[i] != want[i] {
			t.Errorf("page %d = %+v, want %+v", i, doc.Pages[i], want[i])
		}
	}
}

func TestParsePlain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"as is", "Hello world\nLine 2", "Hello world\nLine 2"},
		{"utf8", "caf\xc3\xa9", "café"},
		{"invalid utf8", "hello\x80world", "hello�world"},
		{"bom and crlf", "\xef\xbb\xbfone\r\ntwo", "one\ntwo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := extractBytes(t, []byte(tt.in), ".txt")
			if doc.Text != tt.want {
				t.Errorf("got %q, want %q", doc.Text, tt.want)
			}
			if doc.Pages != nil {
				t.Errorf("plain text has pages: %+v", doc.Pages)
			}
		})
	}
}

func TestExtractBytes_unknownExtensionIsPlain(t *testing.T) {
	if got := extractBytes(t, []byte("raw content"), ".xyz").Text; got != "raw content" {
		t.Errorf("got %q", got)
	}
}

func TestParseXLSX_pagePerSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Title")
	f.SetCellValue("Sheet1", "A2", "Value 1")
	f.SetCellValue("Sheet1", "B2", "Value 2")
	if _, err := f.NewSheet("Budget"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Budget", "A1", "Rent")
	f.SetCellValue("Budget", "B1", 1200)
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	doc := extractBytes(t, buf.Bytes(), ".XLSX")
	checkPages(t, doc, []models.Page{
		{Number: 1, Label: "Sheet1", Text: "Title\nValue 1\tValue 2"},
		{Number: 2, Label: "Budget", Text: "Rent\t1200"},
	})
	if doc.Text != "Title\nValue 1\tValue 2\n\nRent\t1200" {
		t.Errorf("text = %q", doc.Text)
	}
}

func TestExtract_files(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "test.txt")
	if err := os.WriteFile(txt, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	xlsx := filepath.Join(dir, "data.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Searchable text")
	if err := f.SaveAs(xlsx); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	e := NewExtractor()
	for path, want := range map[string]string{txt: "File content", xlsx: "Searchable text"} {
		doc, err := e.Extract(path)
		if err != nil {
			t.Fatalf("Extract(%s): %v", path, err)
		}
		if doc.Text != want {
			t.Errorf("Extract(%s) = %q, want %q", path, doc.Text, want)
		}
	}
	if _, err := e.Extract(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

const wordNS = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`

func TestParseDOCX(t *testing.T) {
	body := wordNS +
		`<w:p w:rsidR="00A1"><w:r><w:t>Sear</w:t></w:r><w:r><w:t xml:space="preserve">chable </w:t></w:r><w:r><w:t>docx &amp; more</w:t></w:r></w:p>` +
		`<w:p><w:pPr><w:jc w:val="left"/></w:pPr><w:r><w:t>Second paragraph</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	doc := extractBytes(t, zipOf(t, "word/document.xml", body), ".docx")
	if doc.Text != "Searchable docx & more\nSecond paragraph" {
		t.Errorf("text = %q", doc.Text)
	}
	if doc.Pages != nil {
		t.Errorf("document without breaks has pages: %+v", doc.Pages)
	}
}

func TestParseDOCX_pageBreaks(t *testing.T) {
	body := wordNS +
		`<w:p><w:r><w:t>Cover</w:t></w:r></w:p>` +
		`<w:p><w:r><w:br w:type="page"/></w:r></w:p>` +
		`<w:p><w:r><w:lastRenderedPageBreak/><w:t>Chapter one</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Chapter two</w:t></w:r><w:r><w:br w:type="page"/><w:t>Appendix</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	doc := extractBytes(t, zipOf(t, "word/document.xml", body), ".docx")
	// The empty page between the explicit and the rendered break is dropped.
	checkPages(t, doc, []models.Page{
		{Number: 1, Text: "Cover"},
		{Number: 3, Text: "Chapter one\nChapter two"},
		{Number: 4, Text: "Appendix"},
	})
}

func TestParseDOCX_bodyPartFromContentTypes(t *testing.T) {
	for _, override := range []string{
		`<Override PartName="/word/document2.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`,
		`<Override ContentType="application/vnd.ms-word.document.macroEnabled.main+xml" PartName="/word/document2.xml"/>`,
	} {
		types := `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
			override + `</Types>`
		content := zipOf(t,
			"[Content_Types].xml", types,
			"word/document2.xml", wordNS+`<w:p><w:r><w:t>Content from document2</w:t></w:r></w:p></w:body></w:document>`)
		if got := extractBytes(t, content, ".docx").Text; got != "Content from document2" {
			t.Errorf("got %q for %s", got, override)
		}
	}
}

func slideXML(texts ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sld xmlns:a="a" xmlns:p="p"><p:cSld><p:spTree><p:sp><p:txBody>`)
	for _, t := range texts {
		b.WriteString(`<a:p><a:pPr lvl="0"/><a:r><a:rPr lang="en-US"/><a:t>` + t + `</a:t></a:r></a:p>`)
	}
	b.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	return b.String()
}

func TestParsePPTX_slidesInNumericOrder(t *testing.T) {
	content := zipOf(t,
		"ppt/slides/slide10.xml", slideXML("Closing"),
		"ppt/slides/slide2.xml", slideXML("Agenda", "Q&amp;A"),
		"ppt/slides/_rels/slide2.xml.rels", "<Relationships/>",
		"ppt/slides/slide1.xml", slideXML("Title"),
		"ppt/slideLayouts/slideLayout1.xml", slideXML("Layout placeholder"),
	)
	doc := extractBytes(t, content, ".pptx")
	checkPages(t, doc, []models.Page{
		{Number: 1, Text: "Title"},
		{Number: 2, Text: "Agenda\nQ&A"},
		{Number: 10, Text: "Closing"},
	})
}

func TestParsePPTX_noSlides(t *testing.T) {
	doc := extractBytes(t, zipOf(t, "ppt/slides/other.xml", "", "docProps/core.xml", ""), ".pptx")
	if doc.Text != "" || doc.Pages != nil {
		t.Errorf("got %+v", doc)
	}
}

func TestParseODP_pagePerSlide(t *testing.T) {
	contentXML := `<office:document-content><office:body><office:presentation>` +
		`<draw:page draw:name="Intro" draw:master-page-name="Default"><draw:frame><draw:text-box>` +
		`<text:h text:outline-level="1">Slide title</text:h><text:p text:style-name="P1">Body <text:span text:style-name="T1">text</text:span><text:s/>here</text:p>` +
		`</draw:text-box></draw:frame><presentation:notes><draw:page-thumbnail draw:page-number="1"/></presentation:notes></draw:page>` +
		`<draw:page draw:name="Empty"><text:p/></draw:page>` +
		`<draw:page draw:name="Outro"><text:p>Thanks</text:p></draw:page>` +
		`</office:presentation></office:body></office:document-content>`
	doc := extractBytes(t, zipOf(t, "content.xml", contentXML), ".odp")
	checkPages(t, doc, []models.Page{
		{Number: 1, Label: "Intro", Text: "Slide title\nBody text here"},
		{Number: 3, Label: "Outro", Text: "Thanks"},
	})
}

func TestParseODS_pagePerSheet(t *testing.T) {
	contentXML := `<office:document-content><office:body><office:spreadsheet>` +
		`<table:table table:name="People"><table:table-column/>` +
		`<table:table-row><table:table-cell office:value-type="string"><text:p>Name</text:p></table:table-cell><table:table-cell><text:p>Role</text:p></table:table-cell></table:table-row>` +
		`<table:table-row><table:table-cell><text:p>Ana</text:p></table:table-cell><table:table-cell><text:p><text:span>Lead</text:span></text:p></table:table-cell><table:table-cell/></table:table-row>` +
		`</table:table>` +
		`<table:table table:name="Notes"><table:table-row><table:table-cell><text:p>R&amp;D</text:p></table:table-cell></table:table-row></table:table>` +
		`</office:spreadsheet></office:body></office:document-content>`
	doc := extractBytes(t, zipOf(t, "content.xml", contentXML), ".ods")
	checkPages(t, doc, []models.Page{
		{Number: 1, Label: "People", Text: "Name\tRole\nAna\tLead"},
		{Number: 2, Label: "Notes", Text: "R&D"},
	})
}

func TestExtract_packageFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"deck.pptx": zipOf(t, "ppt/slides/slide1.xml", slideXML("Searchable from file")),
		"pres.odp":  zipOf(t, "content.xml", `<draw:page><text:p>Searchable from file</text:p></draw:page>`),
		"sheet.ods": zipOf(t, "content.xml", `<table:table table:name="S"><table:table-row><table:table-cell><text:p>Searchable from file</text:p></table:table-cell></table:table-row></table:table>`),
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0600); err != nil {
			t.Fatal(err)
		}
		doc, err := NewExtractor().Extract(path)
		if err != nil {
			t.Fatalf("Extract(%s): %v", name, err)
		}
		if doc.Text != "Searchable from file" || len(doc.Pages) != 1 || doc.Pages[0].Number != 1 {
			t.Errorf("Extract(%s) = %+v", name, doc)
		}
	}
}

func TestExtractBytes_malformed(t *testing.T) {
	noContent := zipOf(t, "other.xml", "")
	tests := []struct {
		ext     string
		content []byte
	}{
		{".pptx", []byte("not a zip")},
		{".docx", []byte("not a zip")},
		{".docx", noContent},
		{".odp", noContent},
		{".ods", noContent},
		{".pdf", []byte("%PDF-garbage")},
	}
	for _, tt := range tests {
		if _, err := NewExtractor().ExtractBytes(tt.content, tt.ext); err == nil {
			t.Errorf("ExtractBytes(%s): expected error", tt.ext)
		}
	}
}

func TestExtract_rtfFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.rtf")
	if err := os.WriteFile(path, []byte(`{\rtf1\ansi Meeting notes about retrieval}`), 0600); err != nil {
		t.Fatal(err)
	}
	doc, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(doc.Text, "retrieval") {
		t.Errorf("Extract rtf: got %q", doc.Text)
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".pdf", ".DOCX", ".odt", ".rtf", ".json", ".md"} {
		if !Supported(ext) {
			t.Errorf("Supported(%q) = false", ext)
		}
	}
	for _, ext := range []string{".exe", ".png", ""} {
		if Supported(ext) {
			t.Errorf("Supported(%q) = true", ext)
		}
	}
}
