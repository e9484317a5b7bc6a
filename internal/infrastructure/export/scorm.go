package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

const manifestIdentifier = "docvault_package"

// SCORMBuilder packages extracted text as a single-SCO SCORM 1.2 course.
type SCORMBuilder struct {
	now func() time.Time
}

func NewSCORMBuilder() *SCORMBuilder {
	return &SCORMBuilder{now: time.Now}
}

func (b *SCORMBuilder) BuildPackage(w io.Writer, title, text string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Document"
	}

	manifest, err := renderManifest(title)
	if err != nil {
		return err
	}
	var page bytes.Buffer
	if err := indexTemplate.Execute(&page, indexData{Title: title, Paragraphs: paragraphs(text)}); err != nil {
		return fmt.Errorf("render index.html: %w", err)
	}

	zw := zip.NewWriter(w)
	modified := b.now().UTC()
	for _, entry := range []struct {
		name string
		data []byte
	}{
		{name: "imsmanifest.xml", data: manifest},
		{name: "index.html", data: page.Bytes()},
	} {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: entry.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return fmt.Errorf("create %s: %w", entry.name, err)
		}
		if _, err := fw.Write(entry.data); err != nil {
			return fmt.Errorf("write %s: %w", entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close scorm zip: %w", err)
	}
	return nil
}

// paragraphs splits text on blank lines and folds single newlines into spaces.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.Join(strings.Fields(block), " ")
		if block != "" {
			out = append(out, block)
		}
	}
	return out
}

func renderManifest(title string) ([]byte, error) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(title)); err != nil {
		return nil, fmt.Errorf("escape title: %w", err)
	}
	return []byte(fmt.Sprintf(manifestTemplate, manifestIdentifier, escaped.String(), escaped.String())), nil
}

const manifestTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="%s" version="1.0"
  xmlns="http://www.imsproject.org/xsd/imscp_rootv1p1p2"
  xmlns:adlcp="http://www.adlnet.org/xsd/adlcp_rootv1p2"
  xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
  xsi:schemaLocation="http://www.imsproject.org/xsd/imscp_rootv1p1p2 imscp_rootv1p1p2.xsd http://www.imsglobal.org/xsd/imsmd_rootv1p2p1 imsmd_rootv1p2p1.xsd http://www.adlnet.org/xsd/adlcp_rootv1p2 adlcp_rootv1p2.xsd">
  <metadata>
    <schema>ADL SCORM</schema>
    <schemaversion>1.2</schemaversion>
  </metadata>
  <organizations default="org_1">
    <organization identifier="org_1">
      <title>%s</title>
      <item identifier="item_1" identifierref="resource_1">
        <title>%s</title>
      </item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="resource_1" type="webcontent" adlcp:scormtype="sco" href="index.html">
      <file href="index.html"/>
    </resource>
  </resources>
</manifest>
`

type indexData struct {
	Title      string
	Paragraphs []string
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script>
var API = null;
function findAPI(win) {
  var tries = 0;
  while (win && !win.API && win.parent && win.parent !== win && tries < 10) { win = win.parent; tries++; }
  return win ? win.API : null;
}
function scormStart() {
  API = findAPI(window) || (window.opener ? findAPI(window.opener) : null);
  if (!API) { return; }
  API.LMSInitialize("");
  API.LMSSetValue("cmi.core.lesson_status", "completed");
  API.LMSCommit("");
}
function scormFinish() {
  if (API) { API.LMSFinish(""); }
}
</script>
</head>
<body onload="scormStart()" onunload="scormFinish()">
<h1>{{.Title}}</h1>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}</body>
</html>
`))
