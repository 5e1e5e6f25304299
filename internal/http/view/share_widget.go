package view

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
)

// Button is one rendered share destination.
type Button struct {
	ServiceID string
	Name      string
	Icon      string
	URL       string
	// Action is set for services handled client side ("copy", "print").
	Action string
}

// WidgetData provides the dynamic fields of both share layouts.
type WidgetData struct {
	ItemID         string
	Buttons        []Button
	Count          int64
	ShowCount      bool
	Position       string
	MobileBehavior string
	Endpoint       string
	Token          string
}

const widgetSource = `
{{define "link"}}<a class="powershare-link powershare-{{.ServiceID}}" href="{{.URL}}" data-service="{{.ServiceID}}"{{if .Action}} data-action="{{.Action}}"{{else}} target="_blank" rel="noopener noreferrer nofollow"{{end}} title="{{.Name}}"><i class="{{.Icon}}" aria-hidden="true"></i><span class="powershare-label">{{.Name}}</span></a>{{end}}

{{define "floating"}}<div class="powershare-floating powershare-{{.Position}} powershare-mobile-{{.MobileBehavior}}" data-item="{{.ItemID}}" data-endpoint="{{.Endpoint}}" data-token="{{.Token}}">
	<button type="button" class="powershare-toggle" aria-expanded="false"><span class="powershare-count">{{countLabel .Count}}</span> <span class="powershare-count-label">Shares</span></button>
	<ul class="powershare-services" hidden>{{range .Buttons}}
		<li>{{template "link" .}}</li>{{end}}
	</ul>
</div>{{end}}

{{define "inline"}}<div class="powershare-inline powershare-mobile-{{.MobileBehavior}}" data-item="{{.ItemID}}" data-endpoint="{{.Endpoint}}" data-token="{{.Token}}">{{if .ShowCount}}
	<div class="powershare-inline-count"><span class="powershare-count">{{countLabel .Count}}</span> <span class="powershare-count-label">Shares</span></div>{{end}}
	<div class="powershare-buttons">{{range .Buttons}}
		{{template "link" .}}{{end}}
	</div>
</div>{{end}}
`

var widgetTmpl = template.Must(template.New("widget").
	Funcs(template.FuncMap{"countLabel": FormatCount}).
	Parse(widgetSource))

// RenderFloating renders the corner widget: a count toggle expanding to service links.
func RenderFloating(data WidgetData) (template.HTML, error) {
	return render("floating", data)
}

// RenderInline renders the row of buttons appended after item content.
func RenderInline(data WidgetData) (template.HTML, error) {
	return render("inline", data)
}

func render(name string, data WidgetData) (template.HTML, error) {
	if data.Position == "" {
		data.Position = "left"
	}
	if data.MobileBehavior == "" {
		data.MobileBehavior = "same"
	}
	var buf bytes.Buffer
	if err := widgetTmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

var countTiers = []struct {
	scale  float64
	suffix string
}{
	{1e3, "K"},
	{1e6, "M"},
	{1e9, "B"},
}

// FormatCount abbreviates counts of 1000 and above: 12345 -> "12.3K", 4500000 -> "4.5M",
// 2100000000 -> "2.1B".
func FormatCount(n int64) string {
	if n < 1000 {
		return strconv.FormatInt(n, 10)
	}
	for i, tier := range countTiers {
		s := strconv.FormatFloat(float64(n)/tier.scale, 'f', 1, 64)
		// Rounding up to 1000 of this tier moves to the next one.
		if strings.HasPrefix(s, "1000") && i < len(countTiers)-1 {
			continue
		}
		return strings.TrimSuffix(s, ".0") + tier.suffix
	}
	return strconv.FormatInt(n, 10)
}
