package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Your {{.Tier}} subscription</title></head>
<body style="font-family: Georgia, serif; background-color: #f7f7f2; margin: 0; padding: 32px;">
	<table align="center" width="600" style="background-color: #ffffff; border-collapse: collapse;">
		<tr><td style="padding: 24px; border-bottom: 2px solid #111111;"><h1 style="margin: 0;">Gazette</h1></td></tr>
		<tr><td style="padding: 24px; line-height: 1.6;">
			<p>Hello {{.Name}},</p>
			<p>Thank you for your {{.Event}}. Your <strong>{{.Tier}}</strong> subscription is active until
			<strong>{{.ExpiresAt}}</strong>.</p>
			<p>Amount charged: {{.Amount}}</p>
		</td></tr>
		<tr><td style="padding: 16px 24px; color: #666666; font-size: 12px;">This message was sent automatically. Please do not reply.</td></tr>
	</table>
</body>
</html>`))

// ReceiptData fills the subscription receipt email
type ReceiptData struct {
	Name       string
	Event      string
	Tier       string
	PriceCents int64
	ExpiresAt  time.Time
}

// RenderReceipt renders the subscription receipt HTML
func RenderReceipt(data ReceiptData) (string, error) {
	var buf bytes.Buffer
	err := receiptTemplate.Execute(&buf, map[string]string{
		"Name":      data.Name,
		"Event":     data.Event,
		"Tier":      data.Tier,
		"Amount":    fmt.Sprintf("$%d.%02d", data.PriceCents/100, data.PriceCents%100),
		"ExpiresAt": data.ExpiresAt.UTC().Format("January 2, 2006"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.String(), nil
}
