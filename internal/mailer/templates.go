// ABOUTME: Email templates for verification and password-reset messages
// ABOUTME: Templates are markdown rendered twice, as-is for the text part and through goldmark for HTML

package mailer

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
)

// Template names a message template.
type Template string

const (
	TemplateVerifyEmail   Template = "verify-email"
	TemplatePasswordReset Template = "password-reset"
)

// Data carries the values a template interpolates.
type Data struct {
	AppName       string
	RecipientName string
	ActionURL     string
	TTL           time.Duration
}

// Message is a rendered email ready for a transport.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

const verifyEmailSubject = "Confirm your {{.AppName}} email address"

const verifyEmailBody = `Hi {{.RecipientName}},

Welcome to **{{.AppName}}**. Confirm your email address by opening the link
below within {{.TTLHours}} hours:

[Confirm email address]({{.ActionURL}})

If the link does not open, paste this address into your browser:

{{.ActionURL}}

If you did not create this account, ignore this message.
`

const passwordResetSubject = "Reset your {{.AppName}} password"

const passwordResetBody = `Hi {{.RecipientName}},

A password reset was requested for your **{{.AppName}}** account. The link
below is valid for {{.TTLHours}} hour{{if ne .TTLHours 1}}s{{end}} and works
exactly once:

[Choose a new password]({{.ActionURL}})

If you did not request this, your password is unchanged and you can ignore
this message.
`

var templates = map[Template]struct {
	subject *template.Template
	body    *template.Template
}{
	TemplateVerifyEmail: {
		subject: template.Must(template.New("verify-subject").Parse(verifyEmailSubject)),
		body:    template.Must(template.New("verify-body").Parse(verifyEmailBody)),
	},
	TemplatePasswordReset: {
		subject: template.Must(template.New("reset-subject").Parse(passwordResetSubject)),
		body:    template.Must(template.New("reset-body").Parse(passwordResetBody)),
	},
}

// templateData is Data with derived fields the templates use.
type templateData struct {
	Data
	TTLHours int
}

// Render fills in the named template and produces both text and HTML parts.
// The text part is the raw markdown, which reads fine in a plain-text client.
func Render(name Template, to string, data Data) (*Message, error) {
	tpl, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown mail template %q", name)
	}

	td := templateData{Data: data, TTLHours: int(data.TTL.Hours())}
	if td.TTLHours < 1 {
		td.TTLHours = 1
	}
	if td.RecipientName == "" {
		td.RecipientName = "there"
	}

	var subject bytes.Buffer
	if err := tpl.subject.Execute(&subject, td); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	var body bytes.Buffer
	if err := tpl.body.Execute(&body, td); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert(body.Bytes(), &html); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	return &Message{
		To:       to,
		Subject:  subject.String(),
		TextBody: body.String(),
		HTMLBody: html.String(),
	}, nil
}
