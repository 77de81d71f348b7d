package transport

import "html/template"

var viewTemplate = template.Must(template.New("view").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{if .Name}}{{.Name}}{{else}}Document viewer{{end}}</title>
</head>
<body>
<main class="document-viewer" data-document-url="{{.DocumentURL}}">
{{- with .Error}}
<div class="error-summary" role="alert">
<h2 class="error-summary-heading">The document could not be loaded</h2>
<p class="error-summary-status">{{if .StatusCode}}{{.StatusCode}} {{end}}{{.StatusText}}</p>
</div>
{{- else}}
<h1>{{.Name}}</h1>
{{- with .Viewer}}
{{- if eq .Kind.String "image"}}
<app-img-viewer url="{{.BinaryLink}}"><img src="{{.BinaryLink}}" alt="{{$.Name}}"></app-img-viewer>
{{- else if eq .Kind.String "pdf"}}
<app-pdf-viewer url="{{.BinaryLink}}" data-num-pages="{{.PageCount}}"></app-pdf-viewer>
{{- else}}
<app-unsupported-viewer>
<p>The document {{.Name}} can't be displayed. Download it from <a href="{{.BinaryLink}}" download>{{.BinaryLink}}</a>.</p>
</app-unsupported-viewer>
{{- end}}
{{- end}}
{{- with .Note}}
<aside class="notes" data-page="{{$.Page}}">
<h2>Page {{$.Page}}</h2>
<textarea name="content" class="notes-content{{if $.Dirty}} notes-dirty{{end}}">{{.Content}}</textarea>
</aside>
{{- end}}
{{- end}}
</main>
</body>
</html>
`))
