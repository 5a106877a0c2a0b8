package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Template names
const (
	TemplateMagicLink       = "magic_link"
	TemplateAssetReminder   = "asset_reminder"
	TemplateAssetEscalation = "asset_escalation"
	TemplateDraftReminder   = "draft_reminder"
	TemplateDraftEscalation = "draft_escalation"
)

type TemplateData struct {
	TenantName   string
	CustomerName string
	AgencyName   string
	CampaignType string
	Link         string
	Days         int
	Deadline     time.Time
	ExpiresIn    time.Duration
}

type emailTemplate struct {
	subject func(TemplateData) string
	body    *template.Template
}

const layout = `<!doctype html><html><body style="font-family:sans-serif;color:#222">
{{block "content" .}}{{end}}
<p style="color:#888;font-size:12px">{{.TenantName}} campaign portal</p>
</body></html>`

func mustTemplate(name, content string) *template.Template {
	t := template.Must(template.New(name).Funcs(template.FuncMap{
		"date":    func(t time.Time) string { return t.UTC().Format("Mon, 02 Jan 2006") },
		"abs":     abs,
		"minutes": func(d time.Duration) int { return int(d.Minutes()) },
	}).Parse(layout))
	return template.Must(t.Parse(`{{define "content"}}` + content + `{{end}}`))
}

var templates = map[string]emailTemplate{
	TemplateMagicLink: {
		subject: func(d TemplateData) string { return "Your sign-in link for " + d.TenantName },
		body: mustTemplate(TemplateMagicLink, `
<p>Use the link below to sign in to the campaign portal.</p>
<p><a href="{{.Link}}">Sign in</a></p>
<p>The link works once and expires in {{minutes .ExpiresIn}} minutes.</p>`),
	},
	TemplateAssetReminder: {
		subject: func(d TemplateData) string {
			return fmt.Sprintf("Reminder: campaign assets due in %d day(s)", d.Days)
		},
		body: mustTemplate(TemplateAssetReminder, `
<p>Hi {{.CustomerName}},</p>
<p>The assets for your {{.CampaignType}} campaign are due on {{date .Deadline}} ({{.Days}} day(s) left).</p>
<p><a href="{{.Link}}">Upload assets</a></p>`),
	},
	TemplateAssetEscalation: {
		subject: func(d TemplateData) string {
			return fmt.Sprintf("Overdue: assets for %s are %d day(s) late", d.CustomerName, abs(d.Days))
		},
		body: mustTemplate(TemplateAssetEscalation, `
<p>{{.CustomerName}} has not uploaded assets for their {{.CampaignType}} campaign.</p>
<p>The asset deadline was {{date .Deadline}}, {{abs .Days}} day(s) ago.</p>
<p><a href="{{.Link}}">Open campaign</a></p>`),
	},
	TemplateDraftReminder: {
		subject: func(d TemplateData) string {
			return fmt.Sprintf("Reminder: draft for %s due in %d day(s)", d.CustomerName, d.Days)
		},
		body: mustTemplate(TemplateDraftReminder, `
<p>Hi {{.AgencyName}},</p>
<p>The {{.CampaignType}} campaign for {{.CustomerName}} goes live on {{date .Deadline}} ({{.Days}} day(s) left).</p>
<p><a href="{{.Link}}">Open campaign</a></p>`),
	},
	TemplateDraftEscalation: {
		subject: func(d TemplateData) string {
			return fmt.Sprintf("Overdue: %s campaign missed its go-live date", d.CustomerName)
		},
		body: mustTemplate(TemplateDraftEscalation, `
<p>The {{.CampaignType}} campaign for {{.CustomerName}} (agency {{.AgencyName}}) has no approved draft.</p>
<p>The go-live date was {{date .Deadline}}, {{abs .Days}} day(s) ago.</p>
<p><a href="{{.Link}}">Open campaign</a></p>`),
	},
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Render returns the subject and HTML body for the named template.
func Render(name string, data TemplateData) (subject, html string, err error) {
	t, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", name)
	}
	var buf bytes.Buffer
	if err := t.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	return t.subject(data), buf.String(), nil
}
