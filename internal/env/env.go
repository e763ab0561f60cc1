// Package env expands ${VAR} references in configuration values.
package env

import (
	"os"
	"strings"
)

type Var map[string]string

type Env struct {
	Var Var // overrides applied on top of the OS environment
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			if k == "" {
				continue
			}
			base[k] = v
		}
	}
	e.env = base
}

// Set sets an override K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes an override.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// lookup resolves k from the overrides, then the OS environment.
func (e *Env) lookup(k string) (string, bool) {
	if v, ok := e.Var[k]; ok {
		return v, true
	}
	if e.env == nil {
		e.FromOS()
	}
	v, ok := e.env[k]
	return v, ok
}

// Expand replaces every ${VAR} in s. Unknown variables and a bare $VAR are
// left untouched; substituted values are not expanded again.
func (e *Env) Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start+2:], '}')
		if end < 0 {
			break
		}
		name := s[start+2 : start+2+end]
		b.WriteString(s[:start])
		if v, ok := e.lookup(name); ok && name != "" {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : start+3+end])
		}
		s = s[start+3+end:]
	}
	b.WriteString(s)
	return b.String()
}

// ExpandAll expands each value in place.
func (e *Env) ExpandAll(values ...*string) {
	for _, p := range values {
		*p = e.Expand(*p)
	}
}
