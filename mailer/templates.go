package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var funcs = template.FuncMap{
	"lines": func(s string) []string {
		return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	},
	"host": func(u string) string {
		return strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
	},
}

var adminTmpl = template.Must(template.New("admin").Funcs(funcs).Parse(`<div style="font-family: 'Segoe UI', Arial, sans-serif; max-width: 650px; margin: 0 auto;">
  <div style="background: #667eea; padding: 30px 20px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="color: white; margin: 0;">{{.SiteName}}</h1>
    <p style="color: white; margin: 10px 0 0 0;">Nouveau message depuis le formulaire de contact</p>
  </div>
  <div style="background: white; padding: 30px;">
    <p><strong>Email :</strong> <a href="mailto:{{.Email}}">{{.Email}}</a></p>
    <div style="border-left: 5px solid #667eea; padding: 20px; background: #f7fafc;">
      <p style="margin: 0;">{{range $i, $l := lines .Message}}{{if $i}}<br>{{end}}{{$l}}{{end}}</p>
    </div>
    <p style="text-align: center;"><a href="mailto:{{.Email}}?subject={{printf "Re: Votre message sur %s" .SiteName}}">Répondre</a></p>
    <p style="color: #a0aec0; font-size: 13px; text-align: center;">Reçu le {{.ReceivedAt}}</p>
  </div>
</div>`))

var confirmTmpl = template.Must(template.New("confirm").Funcs(funcs).Parse(`<div style="font-family: 'Segoe UI', Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: #667eea; padding: 40px 20px; text-align: center; border-radius: 10px 10px 0 0;">
    <h1 style="color: white; margin: 0;">{{.SiteName}}</h1>
    <p style="color: white; margin: 15px 0 0 0;">Merci de nous avoir contactés !</p>
  </div>
  <div style="background: white; padding: 30px;">
    <p>Nous avons bien reçu votre message et nous vous répondrons dans les plus brefs délais.</p>
    <div style="border-left: 5px solid #667eea; padding: 20px; background: #f7fafc;">
      <p style="margin: 0;">{{range $i, $l := lines .Message}}{{if $i}}<br>{{end}}{{$l}}{{end}}</p>
    </div>
    <p>En attendant, retrouvez nos actualités sur <a href="{{.SiteURL}}">{{host .SiteURL}}</a>.</p>
    <p style="text-align: center; font-weight: 700;">L'équipe {{.SiteName}}</p>
  </div>
  <p style="color: #a0aec0; font-size: 13px; text-align: center;">© {{.Year}} {{.SiteName}}</p>
</div>`))

// Composer builds the two emails sent for a contact form submission.
type Composer struct {
	SiteName    string
	SiteURL     string
	SenderEmail string
	AdminEmail  string
}

type contactView struct {
	SiteName   string
	SiteURL    string
	Email      string
	Message    string
	ReceivedAt string
	Year       int
}

// AdminNotification goes to the site owner with reply-to set to the visitor.
func (c Composer) AdminNotification(visitorEmail, message string, at time.Time) (Email, error) {
	html, err := render(adminTmpl, contactView{
		SiteName:   c.SiteName,
		Email:      visitorEmail,
		Message:    message,
		ReceivedAt: at.UTC().Format("02/01/2006 15:04 MST"),
	})
	if err != nil {
		return Email{}, err
	}
	return Email{
		Sender:      Address{Email: c.SenderEmail, Name: c.SiteName + " - Formulaire de contact"},
		To:          []Address{{Email: c.adminEmail()}},
		ReplyTo:     &Address{Email: visitorEmail},
		Subject:     fmt.Sprintf("[%s] Nouveau message de contact", c.SiteName),
		HTMLContent: html,
	}, nil
}

func (c Composer) Confirmation(visitorEmail, message string, at time.Time) (Email, error) {
	html, err := render(confirmTmpl, contactView{
		SiteName: c.SiteName,
		SiteURL:  c.SiteURL,
		Message:  message,
		Year:     at.Year(),
	})
	if err != nil {
		return Email{}, err
	}
	return Email{
		Sender:      Address{Email: c.SenderEmail, Name: c.SiteName},
		To:          []Address{{Email: visitorEmail}},
		Subject:     "Message bien reçu !",
		HTMLContent: html,
	}, nil
}

func (c Composer) adminEmail() string {
	if c.AdminEmail != "" {
		return c.AdminEmail
	}
	return c.SenderEmail
}

func render(t *template.Template, v contactView) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
