// Package doctor checks a resolved smsdemo configuration and reports hard
// errors alongside deployment warnings.
package doctor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mattjoyce/smsdemo/internal/config"
)

// minSecretLength is the shortest shared secret that does not draw a warning.
const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a resolved configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor for cfg, typically the output of config.Resolve.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if err := config.Validate(d.cfg); err != nil {
		d.addError(r, "config", "", err.Error())
	}
	d.warnWeakSecret(r)
	d.warnReplayExposure(r)
	d.warnSendURL(r)
	d.warnMetrics(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) warnWeakSecret(r *Result) {
	secret := d.cfg.Webhook.Secret
	if secret != "" && len(secret) < minSecretLength {
		d.addWarning(r, "secret", "webhook.secret",
			fmt.Sprintf("secret is shorter than %d characters", minSecretLength))
	}
}

// warnReplayExposure flags configurations where a captured request can be
// delivered again and still verify.
func (d *Doctor) warnReplayExposure(r *Result) {
	w := d.cfg.Webhook
	guarded := d.cfg.Replay.Path != ""

	switch w.Scheme {
	case "legacy":
		// Identical texts carry identical legacy signatures, so no guard can
		// tell a resent request from a genuine repeat.
		d.addWarning(r, "replay", "webhook.scheme",
			"legacy signatures carry no timestamp and resent requests cannot be rejected; prefer the timestamped scheme")
	case "timestamped":
		if w.Tolerance == 0 && !guarded {
			d.addWarning(r, "replay", "webhook.tolerance",
				"signature age is not checked and the replay guard is off")
		}
	}

	if guarded && w.Scheme == "timestamped" && w.Tolerance > 0 {
		retention := d.cfg.Replay.Retention
		if retention <= 0 {
			retention = 24 * time.Hour
		}
		if retention < w.Tolerance {
			d.addWarning(r, "replay", "replay.retention",
				fmt.Sprintf("retention %s is shorter than tolerance %s; old signatures may be accepted twice", retention, w.Tolerance))
		}
	}
}

func (d *Doctor) warnSendURL(r *Result) {
	u, err := url.Parse(d.cfg.Send.URL)
	if err != nil || u.Host == "" {
		d.addError(r, "send", "send.url", fmt.Sprintf("send.url %q is not an absolute URL", d.cfg.Send.URL))
		return
	}
	if !strings.EqualFold(u.Scheme, "https") {
		d.addWarning(r, "send", "send.url", "outbound sends carry the shared secret over plain HTTP")
	}
}

func (d *Doctor) warnMetrics(r *Result) {
	if d.cfg.Server.Binding == "raw" && d.cfg.Service.MetricsListen == "" {
		d.addWarning(r, "metrics", "service.metrics_listen",
			fmt.Sprintf("binding %q does not serve /metrics; set metrics_listen to expose counters", d.cfg.Server.Binding))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
