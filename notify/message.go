package notify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var htmlBody = template.Must(template.New("body").Funcs(template.FuncMap{"kb": kb}).Parse(`<p>You received new document uploads.</p>
<ul>
  <li><b>Application ID:</b> {{.ApplicationID}}</li>
{{- if .CustomerName}}
  <li><b>Customer Name:</b> {{.CustomerName}}</li>
{{- end}}
{{- if .CustomerEmail}}
  <li><b>Customer Email:</b> {{.CustomerEmail}}</li>
{{- end}}
</ul>
<p><b>Files:</b></p>
<ul>
{{- range .Files}}
  <li><b>{{.Label}}</b> - {{.OriginalName}} ({{kb .Size}})</li>
{{- end}}
</ul>
`))

func textBody(n Notification) string {
	var b strings.Builder
	b.WriteString("New document uploads\n")
	fmt.Fprintf(&b, "Application ID: %s\n", n.ApplicationID)
	if n.CustomerName != "" {
		fmt.Fprintf(&b, "Customer Name: %s\n", n.CustomerName)
	}
	if n.CustomerEmail != "" {
		fmt.Fprintf(&b, "Customer Email: %s\n", n.CustomerEmail)
	}
	b.WriteString("\nFiles:\n")
	for _, f := range n.Files {
		fmt.Fprintf(&b, " - %s: %s (%s)\n", f.Label, f.OriginalName, kb(f.Size))
	}
	return b.String()
}

// Compose renders n as a multipart/mixed message: a text and HTML
// alternative followed by one part per stored file.
func Compose(from string, to []string, n Notification, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mixed := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", n.Subject()))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	var alt bytes.Buffer
	altw := multipart.NewWriter(&alt)
	if err := writeTextPart(altw, "text/plain; charset=utf-8", []byte(textBody(n))); err != nil {
		return nil, err
	}
	var html bytes.Buffer
	if err := htmlBody.Execute(&html, n); err != nil {
		return nil, err
	}
	if err := writeTextPart(altw, "text/html; charset=utf-8", html.Bytes()); err != nil {
		return nil, err
	}
	if err := altw.Close(); err != nil {
		return nil, err
	}
	altPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", altw.Boundary())},
	})
	if err != nil {
		return nil, err
	}
	if _, err := altPart.Write(alt.Bytes()); err != nil {
		return nil, err
	}

	for _, f := range n.Files {
		if err := writeAttachment(mixed, f); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeTextPart(w *multipart.Writer, contentType string, body []byte) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}
	return writeBase64(part, bytes.NewReader(body))
}

func writeAttachment(w *multipart.Writer, f Attachment) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open attachment %s: %w", f.StoredName, err)
	}
	defer src.Close()

	name := f.StoredName
	if name == "" {
		name = filepath.Base(f.Path)
	}
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(ct, map[string]string{"name": name})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": name})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}
	return writeBase64(part, src)
}

// writeBase64 encodes r with the 76 column line limit of RFC 2045.
func writeBase64(w io.Writer, r io.Reader) error {
	const lineLen = 76
	raw := make([]byte, lineLen/4*3)
	enc := make([]byte, lineLen)
	for {
		n, err := io.ReadFull(r, raw)
		if n > 0 {
			base64.StdEncoding.Encode(enc, raw[:n])
			if _, werr := w.Write(enc[:base64.StdEncoding.EncodedLen(n)]); werr != nil {
				return werr
			}
			if _, werr := io.WriteString(w, "\r\n"); werr != nil {
				return werr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
