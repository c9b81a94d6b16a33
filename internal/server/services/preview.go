package services

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/blobkeeper/internal/server/models"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
</head>
<body>
<h1>{{.Name}}</h1>
<p>{{.Size}} &middot; {{.ContentType}} &middot; uploaded {{.Uploaded}}</p>
{{- if eq .Kind "image"}}
<img src="{{.RawURL}}" alt="{{.Name}}" style="max-width:100%">
{{- else if eq .Kind "video"}}
<video src="{{.RawURL}}" controls style="max-width:100%"></video>
{{- else if eq .Kind "audio"}}
<audio src="{{.RawURL}}" controls></audio>
{{- end}}
<p><a href="{{.DownloadURL}}">Download</a></p>
</body>
</html>
`))

type previewData struct {
	Name        string
	Size        string
	ContentType string
	Uploaded    string
	Kind        string
	RawURL      string
	DownloadURL string
}

func renderPreview(f *models.File, rawURL string) ([]byte, error) {
	kind, _, _ := strings.Cut(f.ContentType, "/")

	var buf bytes.Buffer
	err := previewTemplate.Execute(&buf, previewData{
		Name:        f.FileName,
		Size:        humanize.IBytes(uint64(f.Size)),
		ContentType: f.ContentType,
		Uploaded:    humanize.Time(f.CreatedAt),
		Kind:        kind,
		RawURL:      rawURL,
		DownloadURL: rawURL + "?output=download",
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
