package services

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// emailView is the data every notification template renders from.
type emailView struct {
	AppName       string
	Name          string
	Email         string
	Code          string
	Purpose       string
	ExpiryMinutes int
	AccountEmail  string
	AccountName   string
	ApprovalLink  string
	PendingURL    string
	SignInURL     string
	SentAt        string
}

type emailTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

func mustEmailTemplate(name, subject, text, html string) emailTemplate {
	return emailTemplate{
		subject: texttemplate.Must(texttemplate.New(name + ".subject").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(name + ".text").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name + ".html").Parse(htmlLayoutHead + html + htmlLayoutFoot)),
	}
}

type renderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

func (t emailTemplate) render(view emailView) (renderedEmail, error) {
	var subject, text, html bytes.Buffer
	if err := t.subject.Execute(&subject, view); err != nil {
		return renderedEmail{}, fmt.Errorf("render subject: %w", err)
	}
	if err := t.text.Execute(&text, view); err != nil {
		return renderedEmail{}, fmt.Errorf("render text body: %w", err)
	}
	if err := t.html.Execute(&html, view); err != nil {
		return renderedEmail{}, fmt.Errorf("render html body: %w", err)
	}
	return renderedEmail{Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}

const htmlLayoutHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.AppName}}</title>
</head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f8fafc;">
<div style="background-color: #ffffff; border-radius: 8px; padding: 40px;">
<div style="text-align: center; margin-bottom: 30px;">
<h1 style="color: #1f2937; font-size: 24px; margin: 0;">{{.AppName}}</h1>
<p style="color: #6b7280; margin: 8px 0 0 0;">Stock Take Operations Platform</p>
</div>
`

const htmlLayoutFoot = `
<div style="margin-top: 40px; padding-top: 24px; border-top: 1px solid #e5e7eb; text-align: center; color: #6b7280; font-size: 14px;">
<p>This email was sent from {{.AppName}}</p>
<p>If you have any questions, please contact your system administrator.</p>
</div>
</div>
</body>
</html>
`

var (
	otpEmail = mustEmailTemplate("otp",
		`Your {{.AppName}} Verification Code - {{.Code}}`,
		`{{.AppName}} - Verification Code

Hello {{.Name}},

You've requested a verification code for {{.Purpose}}.

Your verification code is: {{.Code}}

This code will expire in {{.ExpiryMinutes}} minutes for security reasons.

If you didn't request this code, please ignore this email or contact your administrator if you have concerns.

Security Notice: Never share this verification code with anyone. {{.AppName}} staff will never ask for your verification code.

---
This email was sent from {{.AppName}}
`,
		`<p>Hello {{.Name}},</p>
<p>You've requested a verification code for <strong>{{.Purpose}}</strong>. Please use the code below to complete your verification:</p>
<div style="background-color: #f3f4f6; border: 2px dashed #d1d5db; border-radius: 8px; padding: 24px; text-align: center; margin: 30px 0;">
<p style="font-size: 32px; font-weight: bold; color: #2563eb; letter-spacing: 4px; margin: 0; font-family: 'Courier New', monospace;">{{.Code}}</p>
<p style="color: #6b7280; font-size: 14px;">Verification Code</p>
</div>
<p>This code will expire in <strong>{{.ExpiryMinutes}} minutes</strong> for security reasons.</p>
<p>If you didn't request this code, please ignore this email or contact your administrator if you have concerns.</p>
<div style="background-color: #fef3c7; border-left: 4px solid #f59e0b; padding: 16px; margin: 24px 0;">
<p style="font-weight: bold; color: #92400e; margin: 0 0 8px 0;">Security Notice</p>
<p style="color: #92400e; margin: 0; font-size: 14px;">Never share this verification code with anyone. {{.AppName}} staff will never ask for your verification code.</p>
</div>`)

	approvalEmail = mustEmailTemplate("approval",
		`{{.AppName}} - New User Approval Required: {{.AccountName}}`,
		`{{.AppName}} - User Approval Required

Hello,

A new user has requested access to {{.AppName}} and requires your approval.

Name: {{.AccountName}}
Email: {{.AccountEmail}}
Requested: {{.SentAt}}

Approve this user: {{.ApprovalLink}}
Review all pending users: {{.PendingURL}}

Only approve users you recognise and who need access to stock take operations.
`,
		`<p>Hello,</p>
<p>A new user has requested access to {{.AppName}} and requires your approval.</p>
<div style="background-color: #f9fafb; border: 1px solid #e5e7eb; border-radius: 8px; padding: 24px; margin: 24px 0;">
<h3 style="margin: 0 0 16px 0; color: #1f2937;">User Information</h3>
<p><strong>Name:</strong> {{.AccountName}}</p>
<p><strong>Email:</strong> {{.AccountEmail}}</p>
<p><strong>Requested:</strong> {{.SentAt}}</p>
</div>
<p style="text-align: center;">
<a href="{{.ApprovalLink}}" style="display: inline-block; background-color: #16a34a; color: #ffffff; padding: 12px 24px; text-decoration: none; border-radius: 6px;">Approve User</a>
<a href="{{.PendingURL}}" style="display: inline-block; background-color: #2563eb; color: #ffffff; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin-left: 8px;">Review Pending Users</a>
</p>
<p>Only approve users you recognise and who need access to stock take operations.</p>`)

	welcomeEmail = mustEmailTemplate("welcome",
		`Welcome to {{.AppName}} - Your Account is Now Active!`,
		`Welcome to {{.AppName}}!

Hello {{.Name}},

Your account has been approved and is now active. You can sign in with {{.Email}}.

Sign in: {{.SignInURL}}

If you have any questions, please contact your system administrator.
`,
		`<p>Hello {{.Name}},</p>
<p>Your account has been approved and is now active. You can sign in with <strong>{{.Email}}</strong>.</p>
<p style="text-align: center;">
<a href="{{.SignInURL}}" style="display: inline-block; background-color: #2563eb; color: #ffffff; padding: 12px 24px; text-decoration: none; border-radius: 6px;">Sign In to {{.AppName}}</a>
</p>`)

	testEmail = mustEmailTemplate("test",
		`{{.AppName}} - Email Configuration Test`,
		`{{.AppName}} - Email Configuration Test

This is a test email sent at {{.SentAt}}.

If you received it, outbound email is configured correctly.
`,
		`<p>This is a test email sent at <strong>{{.SentAt}}</strong>.</p>
<p>If you received it, outbound email is configured correctly.</p>`)
)
