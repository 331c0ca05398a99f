package export

import (
	"bytes"
	"strings"
	"text/template"
	"time"
)

const xlsxExtension = ".xlsx"

type filenameData struct {
	Grid      string
	Title     string
	Timestamp string
	Date      string
}

func renderFilename(def GridDefinition, title string, now time.Time) (string, error) {
	name := def.DefaultFilename
	if name == "" {
		name = "{{.Grid}}_{{.Timestamp}}"
	}

	data := filenameData{
		Grid:      def.Name,
		Title:     title,
		Timestamp: now.UTC().Format("20060102T150405Z"),
		Date:      now.UTC().Format("20060102"),
	}

	tmpl, err := template.New("filename").Parse(name)
	if err != nil {
		return "", NewError(KindValidation, "invalid filename template", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", NewError(KindValidation, "invalid filename template", err)
	}

	result := strings.TrimSpace(buf.String())
	if result == "" {
		return "", NewError(KindValidation, "empty filename", nil)
	}
	if !strings.HasSuffix(strings.ToLower(result), xlsxExtension) {
		result = result + xlsxExtension
	}
	return result, nil
}
