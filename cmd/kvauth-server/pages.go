package main

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/MrEthical07/kvauth"
	"github.com/MrEthical07/kvauth/cookie"
	"go.uber.org/zap"
)

type loginData struct {
	Site      string
	Action    string
	Providers []string
}

type verifyData struct {
	Site   string
	Action string
	Email  string
}

type homeData struct {
	Site     string
	User     *kvauth.User
	Sessions []kvauth.SessionView
}

type page struct {
	Toast *cookie.Toast
	Body  any
}

const layout = `{{define "top"}}<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Body.Site}}</title></head><body>
{{with .Toast}}<p class="toast toast-{{.Type}}" role="status"><strong>{{.Title}}</strong>{{with .Description}} {{.}}{{end}}</p>{{end}}
{{end}}
{{define "bottom"}}</body></html>{{end}}`

var pages = template.Must(template.New("pages").Parse(layout + `
{{define "login"}}{{template "top" .}}
<h1>Sign in to {{.Body.Site}}</h1>
<form method="post" action="{{.Body.Action}}">
  <label>Email <input type="email" name="email" autocomplete="email" required></label>
  <button type="submit">Email me a code</button>
</form>
{{range .Body.Providers}}<p><a href="/auth/{{.}}">Continue with {{.}}</a></p>{{end}}
{{template "bottom" .}}{{end}}

{{define "verify"}}{{template "top" .}}
<h1>Check your email</h1>
<p>We sent a code to {{.Body.Email}}.</p>
<form method="post" action="{{.Body.Action}}">
  <label>Code <input name="code" autocomplete="one-time-code" required></label>
  <button type="submit">Sign in</button>
</form>
<form method="post" action="{{.Body.Action}}">
  <input type="hidden" name="intent" value="resend">
  <button type="submit">Send a new code</button>
</form>
{{template "bottom" .}}{{end}}

{{define "home"}}{{template "top" .}}
<h1>Signed in as {{.Body.User.DisplayName}}</h1>
<p>{{.Body.User.Email}} ({{.Body.User.Username}})</p>
<form method="post" action="/auth/logout"><button type="submit">Sign out</button></form>
<h2>Devices</h2>
<ul>
{{range .Body.Sessions}}<li>{{.UserAgent}} {{.IPAddress}} {{.CreatedTime.Format "2006-01-02 15:04"}}
  {{if .Current}}(this device){{else}}<form method="post" action="/account/sessions/{{.SessionID}}/delete"><button type="submit">Sign out</button></form>{{end}}</li>
{{end}}</ul>
<form method="post" action="/account/sessions/others/delete"><button type="submit">Sign out all other devices</button></form>
<h2>Delete account</h2>
<form method="post" action="/account/delete">
  <label>Type your email to confirm <input type="email" name="email" required></label>
  <button type="submit">Delete my account</button>
</form>
{{template "bottom" .}}{{end}}
`))

// render writes the named page, consuming any pending toast.
func (s *server) render(w http.ResponseWriter, r *http.Request, name string, body any) {
	toast, clear := s.svc.Bridge.Toast(r)
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, page{Toast: toast, Body: body}); err != nil {
		s.svc.Logger.Error("render page", zap.String("page", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if clear != "" {
		w.Header().Add("Set-Cookie", clear)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
