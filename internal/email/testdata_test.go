package email

import (
	"encoding/base64"
	"fmt"
	"strings"
)

var testPNG = []byte("\x89PNG\r\n\x1a\nfake-screenshot-bytes")

// buildAlertMessage renders a multipart alert email. An empty html or a
// nil image leaves that part out.
func buildAlertMessage(from, subject, html string, image []byte) []byte {
	const boundary = "ALERTBOUNDARY"
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	b.WriteString("To: bot@example.com\r\n")
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	}
	b.WriteString("Date: Mon, 19 Oct 2026 10:00:00 +0000\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	if html != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(html)
		b.WriteString("\r\n")
	}
	if image != nil {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: image/png\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		b.WriteString("Content-Disposition: inline; filename=\"screenshot.png\"\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString(image))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}
