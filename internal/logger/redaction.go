package logger

import (
	"io"
	"regexp"
)

const redactedMark = "[REDACTED]"

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor masks secrets in log output. Keyed secrets keep their key so the
// log line stays readable: "password":"[REDACTED]".
type Redactor struct {
	rules []rule
}

// sensitiveKeys are field and header names whose values are never logged.
// Document passwords reach the logs through operation arguments.
var sensitiveKeys = `password|passwd|pwd|passphrase|shared_secret|x-docmcp-secret|secret|signature|token|api_key`

// NewRedactor creates a redactor with the default rules.
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			{regexp.MustCompile(`(?i)("?\b(?:` + sensitiveKeys + `)"?\s*[:=]\s*"?)[^\s",}&;]+`), "${1}" + redactedMark},
			{regexp.MustCompile(`(Bearer\s+)[a-zA-Z0-9._~+/-]+=*`), "${1}" + redactedMark},
			{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), redactedMark},
			{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), redactedMark},
		},
	}
}

// AddPattern masks every match of pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{re: re, repl: redactedMark})
	return nil
}

// Redact returns s with every rule applied.
func (r *Redactor) Redact(s string) string {
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllString(s, rl.repl)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success: callers account for what they passed in,
// not for the redacted length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.writer, w.redactor.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
