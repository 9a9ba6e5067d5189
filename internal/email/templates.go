package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// DigestSubject builds the subject line for a digest.
func DigestSubject(entries []DigestEntry) string {
	if len(entries) == 1 {
		e := entries[0]
		if e.DaysUntil == 0 {
			return fmt.Sprintf("🎉 Reminder: %s's birthday is today!", e.Name)
		}
		return fmt.Sprintf("🎉 Reminder: %s's birthday in %s!", e.Name, dayCount(e.DaysUntil))
	}
	return fmt.Sprintf("🎉 %d birthdays coming up", len(entries))
}

// When renders the "today" / "in N days" phrase for an entry.
func (e DigestEntry) When() string {
	if e.DaysUntil == 0 {
		return "today"
	}
	return "in " + dayCount(e.DaysUntil)
}

func dayCount(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// ─── HTML TEMPLATES ───────────────────────────────────────────────────────────

var digestTmpl = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Arial, sans-serif; color: #1a1a1a; max-width: 600px; margin: 0 auto; padding: 24px;">
  <h2 style="color: #e91e63;">🎉 Birthday Reminder!</h2>
  <p>Hey {{.Greeting}},</p>
  <p>Don't forget these upcoming birthdays:</p>
  <ul>
  {{- range .Entries}}
    <li><strong>{{.Name}}</strong>: {{.When}} 🎂</li>
  {{- end}}
  </ul>
  <p style="margin-top: 30px; color: #666;">- Bornify Team</p>
</body>
</html>`))

var loginCodeTmpl = template.Must(template.New("login_code").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; padding: 20px; background-color: #f9f9f9;">
  <div style="max-width: 600px; margin: auto; background-color: #ffffff; border-radius: 10px; padding: 30px;">
    <h2 style="color: #4f46e5; text-align: center;">Welcome to Bornify 🎉</h2>
    <p>Here is your one-time passcode:</p>
    <p style="text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 4px;">{{.Code}}</p>
    <p style="font-size: 14px; color: #666;">This code is valid for <strong>{{.ValidMins}} minutes</strong>. Please do not share it with anyone.</p>
    <hr style="margin: 30px 0; border: none; border-top: 1px solid #eee;">
    <p style="font-size: 13px; color: #999;">If you did not request this, you can safely ignore this email.</p>
  </div>
</body>
</html>`))

func renderDigest(p DigestParams) (string, error) {
	greeting := p.UserName
	if greeting == "" {
		greeting = "there"
	}
	var buf bytes.Buffer
	err := digestTmpl.Execute(&buf, struct {
		Greeting string
		Entries  []DigestEntry
	}{greeting, p.Entries})
	return buf.String(), err
}

func renderLoginCode(p LoginCodeParams) (string, error) {
	var buf bytes.Buffer
	err := loginCodeTmpl.Execute(&buf, p)
	return buf.String(), err
}
