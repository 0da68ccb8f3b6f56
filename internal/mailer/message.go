package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jaytaylor/html2text"
)

// Message is one rendered email ready for submission.
type Message struct {
	From     string
	FromName string
	To       string
	Subject  string
	HTML     string
	Text     string
}

// PlainText derives a text/plain approximation of an HTML body for
// clients that prefer or require a text alternative.
func PlainText(html string) string {
	if html == "" {
		return ""
	}
	text, err := html2text.FromString(html, html2text.Options{TextOnly: false})
	if err != nil {
		// Unconvertible markup: send the HTML part alone.
		return ""
	}
	return text
}

// Encode constructs the RFC 5322 message data. Bodies with both HTML
// and text are sent as multipart/alternative.
func (m *Message) Encode() []byte {
	var buf bytes.Buffer

	from := mail.Address{Name: sanitizeHeader(m.FromName), Address: m.From}
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", sanitizeHeader(m.To)))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeHeader(m.Subject))))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.New().String(), extractDomain(m.From)))

	switch {
	case m.HTML != "" && m.Text != "":
		boundary := uuid.New().String()
		buf.WriteString("MIME-Version: 1.0\r\n")
		buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(m.Text)
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(m.HTML)
		buf.WriteString("\r\n")

		buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	case m.HTML != "":
		buf.WriteString("MIME-Version: 1.0\r\n")
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(m.HTML)
		buf.WriteString("\r\n")

	default:
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(m.Text)
		buf.WriteString("\r\n")
	}

	return buf.Bytes()
}

// sanitizeHeader strips CR/LF so rendered values (subject, display
// name) cannot smuggle extra header lines into the message.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}

func extractDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}
