package notify

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/resend/resend-go/v3"

	"github.com/kuitang/storefront-e2e/internal/errs"
)

// ResendNotifier emails the summary through the Resend API.
type ResendNotifier struct {
	client      *resend.Client
	fromAddress string
	to          []string
}

// NewResendNotifier creates a notifier. fromAddress must be verified in Resend.
func NewResendNotifier(apiKey, fromAddress string, to []string) *ResendNotifier {
	return &ResendNotifier{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
		to:          to,
	}
}

func (r *ResendNotifier) Send(ctx context.Context, s Summary) error {
	html, err := renderSummaryHTML(s)
	if err != nil {
		return err
	}
	params := &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      r.to,
		Subject: s.Subject(),
		Html:    html,
	}
	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return errs.Wrap(errs.Unavailable, "notify: send summary email", err)
	}
	return nil
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 640px; margin: 0 auto; padding: 20px;">
    <div style="background: {{if .Failed}}#c0392b{{else}}#27ae60{{end}}; padding: 24px; border-radius: 10px 10px 0 0;">
        <h1 style="color: white; margin: 0; font-size: 22px;">{{if .RunName}}{{.RunName}}{{else}}storefront e2e{{end}}</h1>
    </div>
    <div style="background: #ffffff; padding: 24px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 10px 10px;">
        <p><strong>{{.Passed}}</strong> passed, <strong>{{.Failed}}</strong> failed, <strong>{{.Skipped}}</strong> skipped of {{.Total}} in {{.Elapsed}}.</p>
        {{if .RunID}}<p style="color: #666;">Test run #{{.RunID}}</p>{{end}}
        {{if .Failures}}
        <h2 style="font-size: 18px;">Failures</h2>
        <ul>
            {{range .Failures}}<li>{{if .CaseID}}<strong>C{{.CaseID}}</strong> {{end}}{{.Scenario}}: {{.Error}}{{if .ScreenshotURL}} (<a href="{{.ScreenshotURL}}">screenshot</a>){{end}}</li>
            {{end}}
        </ul>
        {{end}}
        <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">Sent automatically at the end of the storefront e2e run.</p>
    </div>
</body>
</html>`))

func renderSummaryHTML(s Summary) (string, error) {
	data := struct {
		Summary
		Subject string
		Total   int
		Elapsed string
	}{
		Summary: s,
		Subject: s.Subject(),
		Total:   s.Total(),
		Elapsed: s.Duration.Round(time.Second).String(),
	}
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return "", errs.Wrap(errs.Internal, "notify: render summary", err)
	}
	return buf.String(), nil
}
