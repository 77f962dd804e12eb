// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/samber/oops"

	"github.com/holomush/visitor/internal/account"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Page names. Each has a templates/<name>.html file.
const (
	pageRegister           = "register"
	pageLogin              = "login"
	pageForgotPassword     = "forgot_password"
	pageCheckEmail         = "check_email"
	pageResetPassword      = "reset_password"
	pageChangePassword     = "change_password"
	pageInvitationStart    = "invitation_start"
	pageInvitationComplete = "invitation_complete"
	pageError              = "error"
)

var pageNames = []string{
	pageRegister,
	pageLogin,
	pageForgotPassword,
	pageCheckEmail,
	pageResetPassword,
	pageChangePassword,
	pageInvitationStart,
	pageInvitationComplete,
	pageError,
}

// form carries submitted values and their validation messages back to a
// page. Passwords are never echoed.
type form struct {
	Values   map[string]string
	Errors   map[string][]string
	NonField []string
}

func (f form) Value(field string) string   { return f.Values[field] }
func (f form) Error(field string) []string { return f.Errors[field] }

func formFrom(r *http.Request, fields ...string) form {
	f := form{Values: make(map[string]string, len(fields))}
	for _, name := range fields {
		f.Values[name] = r.PostFormValue(name)
	}
	return f
}

func (f form) withValidation(v *account.ValidationError) form {
	f.Errors = v.Fields
	return f
}

type pageData struct {
	Title         string
	Prefix        string
	Flashes       []Flash
	Account       *account.Account
	Form          form
	Next          string
	IdentityLabel string
	Email         string
	Status        int
}

type renderer struct {
	pages map[string]*template.Template
}

func newRenderer(fsys fs.FS) (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(fsys, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, oops.Code("WEB_TEMPLATE_PARSE_FAILED").With("page", name).Wrap(err)
		}
		r.pages[name] = tmpl
	}
	return r, nil
}

// render writes page with status. The page is executed into a buffer so a
// template failure never leaves a half-written response.
func (rd *renderer) render(w http.ResponseWriter, status int, name string, data pageData) error {
	tmpl, ok := rd.pages[name]
	if !ok {
		return oops.Code("WEB_TEMPLATE_NOT_FOUND").With("page", name).Errorf("unknown page")
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return oops.Code("WEB_TEMPLATE_EXEC_FAILED").With("page", name).Wrap(err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
