package notifications

import (
	"bytes"
	"html/template"
)

const verificationTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hello {{.Name}},</p>
  <p>Click <a href="{{.URL}}">here</a> to verify your email.</p>
</body>
</html>`

const passwordResetTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hello {{.Name}},</p>
  <p>Your password reset code is: <strong>{{.Token}}</strong></p>
  <p>If you did not request a reset you can ignore this email.</p>
</body>
</html>`

const bookingConfirmationTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hello {{.Name}},</p>
  <p>We received your booking. Details:</p>
  <ul>
    <li>Service: {{.ServiceName}}</li>
    <li>Date: {{.Date}}</li>
    <li>Time: {{.Time}}</li>
    <li>Duration: {{.DurationMinutes}} minutes</li>
    <li>Amount: {{printf "%.2f" .Amount}}</li>
    <li>Booking number: {{.BookingID}}</li>
  </ul>
  <p>Thank you.</p>
</body>
</html>`

var (
	verificationTmpl        = template.Must(template.New("verification").Parse(verificationTemplate))
	passwordResetTmpl       = template.Must(template.New("password_reset").Parse(passwordResetTemplate))
	bookingConfirmationTmpl = template.Must(template.New("booking_confirmation").Parse(bookingConfirmationTemplate))
)

type verificationData struct {
	Name string
	URL  string
}

type passwordResetData struct {
	Name  string
	Token string
}

// BookingSummary is the data rendered into a booking confirmation email.
type BookingSummary struct {
	Name            string
	ServiceName     string
	Date            string
	Time            string
	DurationMinutes int
	Amount          float64
	BookingID       string
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
