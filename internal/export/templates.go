package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var digestTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(digestTemplateText))

// TemplateData holds data for digest template rendering.
type TemplateData struct {
	Title       string
	Bucket      string
	GeneratedAt time.Time
	Messages    []TemplateMessage
}

// TemplateMessage holds one message for the template.
type TemplateMessage struct {
	ID        string
	Content   string
	Timestamp string
	Tags      []string
	ImageURLs []string
}

// RenderDigestHTML renders the digest template with provided data.
func RenderDigestHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const digestTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .message { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
    .message .stamp { color: #666; font-size: 0.85em; }
    .tag { display: inline-block; background: #ddd; border-radius: 3px; padding: 0 0.4em; margin-right: 0.3em; font-size: 0.85em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Bucket | lower}} | {{formatDate .GeneratedAt "Jan 2, 2006 15:04"}} | {{len .Messages}} messages</div>
  {{range .Messages}}
  <div class="message">
    <p>{{.Content}}</p>
    {{range .Tags}}<span class="tag">{{.}}</span>{{end}}
    {{if .ImageURLs}}<p>{{range .ImageURLs}}<a href="{{.}}">{{.}}</a> {{end}}</p>{{end}}
    <div class="stamp">{{.ID}}{{if .Timestamp}} | {{.Timestamp}}{{end}}</div>
  </div>
  {{end}}
</body>
</html>`
