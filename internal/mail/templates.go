package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/sakif/gifteo/internal/model"
)

// Reminder is the data behind one reminder email.
type Reminder struct {
	To         string
	EventName  string
	Date       model.Date
	DaysBefore int
	// About is the profile's display name for events about a person.
	About string
}

// When renders the distance to the event the way the email says it.
func (r Reminder) When() string {
	switch r.DaysBefore {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", r.DaysBefore)
	}
}

const reminderText = `Hi,

{{.EventName}} is {{.When}} ({{.Date.Format "Monday, 2 January 2006"}}).
{{- if .About}}
Have a look at {{.About}}'s wishlists on Gifteo for gift ideas.
{{- end}}

You are receiving this because the event is on your Gifteo calendar.
`

const reminderHTML = `<!doctype html>
<html><body style="font-family:sans-serif">
<p>Hi,</p>
<p><strong>{{.EventName}}</strong> is {{.When}} ({{.Date.Format "Monday, 2 January 2006"}}).</p>
{{- if .About}}
<p>Have a look at {{.About}}'s wishlists on Gifteo for gift ideas.</p>
{{- end}}
<p style="color:#888;font-size:12px">You are receiving this because the event is on your Gifteo calendar.</p>
</body></html>
`

var (
	reminderTextTmpl = texttemplate.Must(texttemplate.New("reminder.txt").Parse(reminderText))
	reminderHTMLTmpl = htmltemplate.Must(htmltemplate.New("reminder.html").Parse(reminderHTML))
)

// RenderReminder builds the message for r. Event and profile names are
// user input; the HTML part escapes them.
func RenderReminder(r Reminder) (Message, error) {
	var text, body bytes.Buffer
	if err := reminderTextTmpl.Execute(&text, r); err != nil {
		return Message{}, fmt.Errorf("mail: rendering text reminder: %w", err)
	}
	if err := reminderHTMLTmpl.Execute(&body, r); err != nil {
		return Message{}, fmt.Errorf("mail: rendering html reminder: %w", err)
	}
	return Message{
		To:      r.To,
		Subject: fmt.Sprintf("Reminder: %s is %s", r.EventName, r.When()),
		Text:    text.String(),
		HTML:    body.String(),
	}, nil
}
