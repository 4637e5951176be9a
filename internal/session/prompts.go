package session

import (
	"bytes"
	"fmt"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"
)

// defaultPromptSources render the built-in messages for each blocked state.
var defaultPromptSources = map[State]string{
	Anonymous:         "Sign in to keep reading.",
	Deleted:           "This account is closed. Contact support for help.",
	Unsubscribed:      "Subscribe to unlock the full library.",
	SubscribedExpired: `Your subscription expired{{ if .ExpiryDate }} on {{ .ExpiryDate }}{{ end }}. Renew to keep reading.`,
}

// PromptRenderer turns blocked access decisions into user-facing messages.
// Deployments may override any state's template through configuration; the
// sprig function set is available inside the templates.
type PromptRenderer struct {
	templates map[State]*template.Template
}

// NewPromptRenderer compiles the default templates merged with any overrides
// keyed by state name.
func NewPromptRenderer(overrides map[string]string) (*PromptRenderer, error) {
	sources := make(map[State]string, len(defaultPromptSources))
	for state, source := range defaultPromptSources {
		sources[state] = source
	}
	for name, source := range overrides {
		sources[State(name)] = source
	}

	templates := make(map[State]*template.Template, len(sources))
	for state, source := range sources {
		tmpl, err := template.New(string(state)).
			Funcs(sprig.TxtFuncMap()).
			Option("missingkey=zero").
			Parse(source)
		if err != nil {
			return nil, fmt.Errorf("session: compile prompt %q: %w", state, err)
		}
		templates[state] = tmpl
	}
	return &PromptRenderer{templates: templates}, nil
}

// promptData is what prompt templates see.
type promptData struct {
	State      State
	ExpiryDate string
	Email      string
	Name       string
}

// Render produces the message for a decision. Allowed decisions and states
// without a template yield an empty string.
func (r *PromptRenderer) Render(decision Decision, expiryDate, name, email string) (string, error) {
	if r == nil || decision.Allowed {
		return "", nil
	}
	tmpl, ok := r.templates[decision.State]
	if !ok {
		return "", nil
	}
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, promptData{
		State:      decision.State,
		ExpiryDate: expiryDate,
		Email:      email,
		Name:       name,
	})
	if err != nil {
		return "", fmt.Errorf("session: render prompt %q: %w", decision.State, err)
	}
	return buf.String(), nil
}
