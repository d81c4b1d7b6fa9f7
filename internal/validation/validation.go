// Package validation checks record payloads before they reach storage. It
// collects every problem in a payload rather than stopping at the first.
package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"

	"github.com/mcare/mcare/internal/platform/apperr"
	"github.com/mcare/mcare/pkg/civil"
)

// Kind names the record type a payload describes.
type Kind string

const (
	KindUser          Kind = "user"
	KindLogin         Kind = "login"
	KindMother        Kind = "mother"
	KindChild         Kind = "child"
	KindVisit         Kind = "visit"
	KindVisitStatus   Kind = "visit_status"
	KindVaccination   Kind = "vaccination"
	KindMedicalRecord Kind = "medical_record"
	KindClinic        Kind = "clinic"
)

// Mode selects create or partial-update semantics.
type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

// GeneralField carries errors that do not belong to a single field.
const GeneralField = "general"

// Payload is a decoded JSON object.
type Payload map[string]any

// Only returns the subset of p whose keys are in allowed.
func (p Payload) Only(allowed []string) Payload {
	out := make(Payload, len(allowed))
	for _, k := range allowed {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Unknown returns the sorted keys of p that are not in allowed.
func (p Payload) Unknown(allowed []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		set[k] = true
	}
	var out []string
	for k := range p {
		if !set[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Has reports whether key is present with a non-empty value.
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && !isEmpty(v)
}

// Errors maps a field name to its message.
type Errors map[string]string

func (e Errors) Valid() bool { return len(e) == 0 }

// Err converts non-empty Errors into a ValidationFailed error.
func (e Errors) Err() error {
	if e.Valid() {
		return nil
	}
	return apperr.Validation(map[string]string(e))
}

func (e Errors) setOnce(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for date rules.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPhoneRegion additionally requires phone numbers to be valid for the
// given ISO region and stores them in E.164 form.
func WithPhoneRegion(region string) Option {
	return func(e *Engine) { e.phoneRegion = strings.ToUpper(strings.TrimSpace(region)) }
}

// Engine validates payloads of every Kind.
type Engine struct {
	now         func() time.Time
	phoneRegion string
	rules       map[Kind]*ruleset
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = defaultRules()
	return e
}

// Today returns the current date according to the engine's clock.
func (e *Engine) Today() civil.Date {
	return civil.Of(e.now())
}

// NormalizePhone applies the configured phone policy.
func (e *Engine) NormalizePhone(raw string) (string, bool) {
	n, ok := NormalizePhone(raw)
	if !ok {
		return "", false
	}
	if e.phoneRegion == "" {
		return n, true
	}
	num, err := phonenumbers.Parse(n, e.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumberForRegion(num, e.phoneRegion) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// Validate checks p as a kind record. The returned Errors is empty when the
// payload is acceptable. A non-nil error means the input was structurally
// unusable.
func (e *Engine) Validate(kind Kind, p Payload, mode Mode) (Errors, error) {
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	rs, ok := e.rules[kind]
	if !ok {
		return nil, apperr.BadRequest(fmt.Sprintf("unknown record kind %q", kind))
	}

	errs := Errors{}
	switch mode {
	case ModeCreate:
		for _, f := range rs.required {
			if isEmpty(p[f]) {
				errs[f] = f + " is required"
			}
		}
	case ModeUpdate:
		supplied := false
		for f := range rs.fields {
			v, ok := p[f]
			if !ok {
				continue
			}
			if !isEmpty(v) {
				supplied = true
			} else if rs.isRequired(f) {
				errs[f] = f + " cannot be empty"
			}
		}
		if !supplied {
			errs[GeneralField] = "at least one field required"
		}
	default:
		return nil, apperr.BadRequest("unknown validation mode")
	}

	for f, check := range rs.fields {
		v, ok := p[f]
		if !ok || isEmpty(v) {
			continue
		}
		if _, failed := errs[f]; failed {
			continue
		}
		if msg := check(e, v); msg != "" {
			errs[f] = msg
		}
	}

	if rs.cross != nil {
		rs.cross(e, p, mode, errs)
	}
	return errs, nil
}

// Check is Validate with the field errors folded into a single error.
func (e *Engine) Check(kind Kind, p Payload, mode Mode) error {
	errs, err := e.Validate(kind, p, mode)
	if err != nil {
		return err
	}
	return errs.Err()
}

// Patch validates a partial update of a kind record. Keys outside allowed
// are dropped, or reported as "field is not updatable" when strict is set.
// The returned payload holds only allowed keys.
func (e *Engine) Patch(kind Kind, p Payload, allowed []string, strict bool) (Payload, error) {
	if p == nil {
		return nil, apperr.BadRequest("request body must be a JSON object")
	}
	patch := p.Only(allowed)
	errs, err := e.Validate(kind, patch, ModeUpdate)
	if err != nil {
		return nil, err
	}
	if strict {
		for _, k := range p.Unknown(allowed) {
			errs[k] = "field is not updatable"
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return patch, nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}
