package ratelimit

import (
	"bytes"
	"io"
	"net/http"
	"text/template"
	"time"

	"ratelimiter/internal/models"
)

// DefaultMessage is the reject message template used when Options.Message is empty.
// Available fields: Limit, Overage, Status, Window, WindowMillis, ResetIn, ResetMillis.
const DefaultMessage = "Too Many Requests. Maximum of {{.Limit}} API calls per {{.WindowMillis}} milliseconds. Rate Reset in {{.ResetMillis}} milliseconds."

// Options configures a Policy. Options are copied at construction and never
// mutated afterwards.
type Options struct {
	// Window is how long hits are remembered before every count is cleared.
	Window time.Duration
	// DelayAfter is how many hits pass untouched before responses are delayed.
	// Zero disables delaying.
	DelayAfter uint64
	// DelayUnit is multiplied by the number of hits above DelayAfter.
	// Zero disables delaying.
	DelayUnit time.Duration
	// Max is the number of hits allowed in a window before rejecting.
	// Zero disables rejection.
	Max uint64
	// StatusCode is sent with a rejection.
	StatusCode int
	// Message is a text/template rendered into the rejection body.
	Message string
	// Global is the removed "one counter for everyone" mode. Setting it fails
	// construction.
	Global bool
}

// DefaultOptions returns the stock limits: 5 requests a minute, with every
// request after the first delayed by one more second than the previous one.
func DefaultOptions() Options {
	return Options{
		Window:     time.Minute,
		DelayAfter: 1,
		DelayUnit:  time.Second,
		Max:        5,
		StatusCode: http.StatusTooManyRequests,
		Message:    DefaultMessage,
	}
}

// Validate checks the options and returns a *ConfigurationError describing the
// first problem found.
func (o Options) Validate() error {
	_, err := o.compile()
	return err
}

// compile validates the options and parses the message template.
func (o Options) compile() (*template.Template, error) {
	if o.Global {
		return nil, newConfigurationError("global", "unsupported mode", ErrGlobalModeRemoved)
	}
	if o.Window <= 0 {
		return nil, newConfigurationError("window", "must be greater than zero", nil)
	}
	if o.DelayUnit < 0 {
		return nil, newConfigurationError("delay_unit", "cannot be negative", nil)
	}
	if o.StatusCode < 100 || o.StatusCode > 599 {
		return nil, newConfigurationError("status_code", "must be a valid HTTP status code", nil)
	}
	msg := o.Message
	if msg == "" {
		msg = DefaultMessage
	}
	tmpl, err := template.New("reject").Option("missingkey=error").Parse(msg)
	if err != nil {
		return nil, newConfigurationError("message", "cannot parse template", err)
	}
	if err := tmpl.Execute(io.Discard, messageData{}); err != nil {
		return nil, newConfigurationError("message", "cannot render template", err)
	}
	return tmpl, nil
}

// messageData is the value the reject message template is executed with.
type messageData struct {
	Limit        uint64
	Overage      uint64
	Status       int
	Window       time.Duration
	WindowMillis int64
	ResetIn      time.Duration
	ResetMillis  int64
}

func renderMessage(tmpl *template.Template, r Rejection) string {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, messageData{
		Limit:        r.Limit,
		Overage:      r.Overage,
		Status:       r.Status,
		Window:       r.Window,
		WindowMillis: r.Window.Milliseconds(),
		ResetIn:      r.ResetIn,
		ResetMillis:  r.ResetIn.Milliseconds(),
	})
	if err != nil {
		return http.StatusText(r.Status)
	}
	return buf.String()
}

// OptionsFromConfig converts the service configuration section into Options.
func OptionsFromConfig(cfg models.RateLimitConfig) Options {
	return Options{
		Window:     cfg.Window,
		DelayAfter: cfg.DelayAfter,
		DelayUnit:  cfg.DelayUnit,
		Max:        cfg.Max,
		StatusCode: cfg.StatusCode,
		Message:    cfg.Message,
		Global:     cfg.Global,
	}
}
