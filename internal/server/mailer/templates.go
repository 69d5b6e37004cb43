package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

const ResetPasswordSubject = "Restablecimiento de contraseña"

var resetPasswordTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #222;">
    <h2>Restablecimiento de contraseña</h2>
    <p>Has solicitado restablecer tu contraseña en BANTX.</p>
    <p>Haz clic en el siguiente enlace para crear una nueva contraseña:</p>
    <p><a href="{{.Link}}">{{.Link}}</a></p>
    <p>Este enlace expira en {{.ValidFor}}.</p>
    <p>Si no solicitaste este cambio, puedes ignorar este correo.</p>
  </body>
</html>
`))

// ResetLink builds {frontendURL}/reset-password/{token}.
func ResetLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/reset-password/" + url.PathEscape(token)
}

// ResetPasswordEmail renders the password reset message.
func ResetPasswordEmail(frontendURL, token, validFor string) (subject, body string, err error) {
	var buf bytes.Buffer
	data := struct{ Link, ValidFor string }{ResetLink(frontendURL, token), validFor}
	if err := resetPasswordTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render reset email: %w", err)
	}
	return ResetPasswordSubject, buf.String(), nil
}
