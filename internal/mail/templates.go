package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/severalx/site/internal/domain"
)

// Sender details used by every message.
const (
	CompanyName     = "Severalx Consulting"
	ContactFormName = "Severalx Consulting Contact Form"
	CompanyPhone    = "(646) 345-1741"
	CompanyWebsite  = "https://severalx.com"
	ChatURL         = "https://chat.severalxconsulting.com"
	ResponseTime    = "within 24-48 hours"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "admin"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><title>New Contact Form Submission</title></head>
<body>
<h1>New Contact Form Submission</h1>
<ul>
<li><strong>Name:</strong> {{.Lead.Name}}</li>
<li><strong>Email:</strong> {{.Lead.Email}}</li>
<li><strong>Phone:</strong> {{.Lead.PhoneOrDefault}}</li>
<li><strong>Service:</strong> {{.Lead.ServiceOrDefault}}</li>
</ul>
<p>{{.Lead.Message}}</p>
<p>Submitted {{.Timestamp}}</p>
</body></html>{{end}}

{{define "autoresponse"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><title>Thank you for contacting {{.Company}}</title></head>
<body>
<p>Hi {{.Lead.Name}},</p>
<p>Thank you for reaching out. We received your message on {{.Timestamp}} and will respond {{.ResponseTime}}.</p>
<p><strong>Service:</strong> {{.Lead.ServiceOrDefault}}</p>
<blockquote>{{.Lead.Message}}</blockquote>
<p>Need us sooner? Call {{.Phone}} or visit <a href="{{.Website}}">{{.Website}}</a>.</p>
<p>Best regards,<br>The {{.Company}} Team</p>
</body></html>{{end}}

{{define "welcome"}}<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><title>Welcome to {{.Company}}</title></head>
<body>
<p>Hi {{.Member.Name}},</p>
<p>Thank you for signing up! You can now access our AI consulting assistant at <a href="{{.ChatURL}}">{{.ChatURL}}</a>.</p>
<ul>
<li><strong>Name:</strong> {{.Member.Name}}</li>
<li><strong>Email:</strong> {{.Member.Email}}</li>
<li><strong>Company:</strong> {{.Member.Company}}</li>
</ul>
<p>Best regards,<br>The {{.Company}} Team</p>
</body></html>{{end}}
`))

type leadData struct {
	Lead         *domain.Lead
	Timestamp    string
	Company      string
	ResponseTime string
	Phone        string
	Website      string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}

// Timestamp formats t the way contact emails show it.
func Timestamp(t time.Time) string {
	return t.Format("Monday, January 2, 2006 at 3:04 PM MST")
}

// AdminNotification tells the firm about a new lead. Replies go to the visitor.
func AdminNotification(lead *domain.Lead, from, to string) (Message, error) {
	body, err := render("admin", leadData{Lead: lead, Timestamp: Timestamp(lead.CreatedAt)})
	if err != nil {
		return Message{}, err
	}
	return Message{
		FromName: ContactFormName,
		From:     from,
		To:       to,
		ReplyTo:  lead.Email,
		Subject:  "New Contact Form Submission from " + lead.Name,
		HTML:     body,
	}, nil
}

// AutoResponse acknowledges a lead's message.
func AutoResponse(lead *domain.Lead, from string) (Message, error) {
	body, err := render("autoresponse", leadData{
		Lead:         lead,
		Timestamp:    Timestamp(lead.CreatedAt),
		Company:      CompanyName,
		ResponseTime: ResponseTime,
		Phone:        CompanyPhone,
		Website:      CompanyWebsite,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		FromName: CompanyName,
		From:     from,
		To:       lead.Email,
		Subject:  "Thank you for contacting " + CompanyName + " - We will be in touch soon!",
		HTML:     body,
	}, nil
}

// Welcome greets a new chat member.
func Welcome(member *domain.Member, from string) (Message, error) {
	body, err := render("welcome", struct {
		Member  *domain.Member
		Company string
		ChatURL string
	}{member, CompanyName, ChatURL})
	if err != nil {
		return Message{}, err
	}
	return Message{
		FromName: CompanyName,
		From:     from,
		To:       member.Email,
		Subject:  "Welcome to " + CompanyName + " Chat",
		HTML:     body,
	}, nil
}
