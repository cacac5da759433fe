package notification

import (
	"strings"
	"time"

	dErrors "formroom/pkg/domain-errors"
)

// Template is a notification body with [Placeholder] slots filled from
// message data at render time.
type Template struct {
	Title string
	Body  string
}

// Renderer resolves template keys and substitutes placeholders. [DateTime]
// is always available; every other placeholder comes from the message data.
type Renderer struct {
	templates map[string]Template
	now       func() time.Time
}

// NewRenderer builds a renderer with the built-in template set.
func NewRenderer() *Renderer {
	return &Renderer{
		templates: map[string]Template{
			"form-submitted": {
				Title: "New submission for [FormName]",
				Body:  "[FormName] received a new submission at [DateTime].",
			},
			"form-updated": {
				Title: "[FormName] was updated",
				Body:  "[Actor] changed [FormName] at [DateTime].",
			},
			"form-shared": {
				Title: "[FormName] was shared with you",
				Body:  "[Actor] invited you to collaborate on [FormName] at [DateTime].",
			},
			"announcement": {
				Title: "[Title]",
				Body:  "[Body]",
			},
		},
		now: time.Now,
	}
}

// Register adds or replaces a template.
func (r *Renderer) Register(key string, tmpl Template) {
	r.templates[key] = tmpl
}

// Render fills the named template from data. Unknown placeholders are left
// in place so a misconfigured message is visible rather than silently blank.
func (r *Renderer) Render(key string, data map[string]string) (Template, error) {
	tmpl, ok := r.templates[key]
	if !ok {
		return Template{}, dErrors.New(dErrors.CodeBadRequest, "unknown notification template "+key)
	}
	return Template{
		Title: r.substitute(tmpl.Title, data),
		Body:  r.substitute(tmpl.Body, data),
	}, nil
}

func (r *Renderer) substitute(s string, data map[string]string) string {
	s = strings.ReplaceAll(s, "[DateTime]", r.now().Format(time.RFC1123))
	for k, v := range data {
		s = strings.ReplaceAll(s, "["+k+"]", v)
	}
	return s
}
