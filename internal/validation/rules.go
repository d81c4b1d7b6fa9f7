package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/mcare/mcare/pkg/civil"
)

// Enumerations shared with the domain packages.
var (
	Roles             = []string{"mother", "health_worker", "admin"}
	BloodTypes        = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	PregnancyStatuses = []string{"pregnant", "postpartum", "not_pregnant"}
	Genders           = []string{"male", "female"}
	BirthTypes        = []string{"normal", "cesarean", "assisted"}
	VisitTypes        = []string{"antenatal", "postnatal", "general"}
	VisitStatuses     = []string{"scheduled", "completed", "cancelled"}
)

const (
	minMotherAge   = 13
	maxMotherAge   = 60
	maxLMPDaysBack = 300
	maxPregnancies = 20
)

type check func(e *Engine, v any) string

type ruleset struct {
	required []string
	fields   map[string]check
	cross    func(e *Engine, p Payload, mode Mode, errs Errors)
}

func (rs *ruleset) isRequired(field string) bool {
	for _, f := range rs.required {
		if f == field {
			return true
		}
	}
	return false
}

func defaultRules() map[Kind]*ruleset {
	return map[Kind]*ruleset{
		KindUser: {
			required: []string{"full_name", "email", "password", "role"},
			fields: map[string]check{
				"full_name": personName(2, 100),
				"email":     email(),
				"phone":     phone(),
				"password":  password(),
				"role":      oneOf(Roles),
				"clinic_id": positiveID(),
			},
		},
		KindLogin: {
			required: []string{"password"},
			fields: map[string]check{
				"email":    text(1, 254),
				"phone":    text(1, 32),
				"password": text(1, 128),
			},
			cross: func(_ *Engine, p Payload, mode Mode, errs Errors) {
				if !p.Has("email") && !p.Has("phone") {
					errs.setOnce("email", "email or phone is required")
				}
			},
		},
		KindMother: {
			required: []string{"first_name", "last_name", "date_of_birth", "phone_number", "blood_type"},
			fields: map[string]check{
				"user_id":                positiveID(),
				"first_name":             personName(2, 50),
				"last_name":              personName(2, 50),
				"date_of_birth":          date(motherBirthDate),
				"phone_number":           phone(),
				"address":                text(1, 200),
				"emergency_contact":      text(1, 100),
				"blood_type":             oneOf(BloodTypes),
				"pregnancy_status":       oneOf(PregnancyStatuses),
				"expected_delivery_date": date(notPast),
				"last_menstrual_period":  date(recentPast(maxLMPDaysBack)),
				"number_of_pregnancies":  intRange(0, maxPregnancies),
				"number_of_live_births":  intRange(0, maxPregnancies),
				"medical_conditions":     text(1, 500),
				"allergies":              text(1, 300),
				"clinic_id":              positiveID(),
			},
			cross: func(_ *Engine, p Payload, _ Mode, errs Errors) {
				gravida, okG := asInt(p["number_of_pregnancies"])
				parity, okP := asInt(p["number_of_live_births"])
				if !okG || !okP {
					return
				}
				if _, bad := errs["number_of_pregnancies"]; bad {
					return
				}
				if _, bad := errs["number_of_live_births"]; bad {
					return
				}
				if parity > gravida {
					errs["number_of_live_births"] = "number_of_live_births cannot exceed number_of_pregnancies"
				}
			},
		},
		KindChild: {
			required: []string{"mother_id", "first_name", "last_name", "gender", "date_of_birth",
				"birth_weight", "birth_height", "birth_type", "apgar_score"},
			fields: map[string]check{
				"mother_id":     positiveID(),
				"first_name":    personName(2, 100),
				"last_name":     personName(2, 100),
				"gender":        oneOf(Genders),
				"date_of_birth": date(notFuture),
				"birth_weight":  positiveNumber(),
				"birth_height":  positiveNumber(),
				"birth_type":    oneOf(BirthTypes),
				"apgar_score":   intRange(0, 10),
				"blood_type":    oneOf(BloodTypes),
			},
		},
		KindVisit: {
			required: []string{"visit_date", "visit_type"},
			fields: map[string]check{
				"mother_id":        positiveID(),
				"child_id":         positiveID(),
				"health_worker_id": positiveID(),
				"visit_date":       date(nil),
				"visit_type":       oneOf(VisitTypes),
				"status":           oneOf(VisitStatuses),
				"weight":           positiveNumber(),
				"blood_pressure":   pattern(bloodPressureRE, "blood_pressure must look like 120/80"),
				"notes":            text(1, 1000),
			},
			cross: func(_ *Engine, p Payload, mode Mode, errs Errors) {
				if mode == ModeCreate && !p.Has("mother_id") && !p.Has("child_id") {
					errs.setOnce("mother_id", "at least one of mother_id or child_id is required")
				}
			},
		},
		KindVisitStatus: {
			required: []string{"status"},
			fields: map[string]check{
				"status": oneOf(VisitStatuses),
			},
		},
		KindVaccination: {
			required: []string{"child_id", "vaccine_name", "date_given"},
			fields: map[string]check{
				"child_id":         positiveID(),
				"health_worker_id": positiveID(),
				"vaccine_name":     all(text(2, 100), pattern(vaccineNameRE, "vaccine_name contains invalid characters")),
				"date_given":       date(notFuture),
				"next_due_date":    date(nil),
				"administered_by":  text(1, 100),
				"batch_number":     all(text(1, 50), pattern(batchNumberRE, "batch_number may contain only letters, digits and hyphens")),
				"notes":            text(1, 1000),
			},
			cross: func(_ *Engine, p Payload, _ Mode, errs Errors) {
				given, okG := asDate(p["date_given"])
				due, okD := asDate(p["next_due_date"])
				if okG && okD && !due.After(given) {
					errs.setOnce("next_due_date", "next_due_date must be after date_given")
				}
			},
		},
		KindMedicalRecord: {
			fields: map[string]check{
				"height":         positiveNumber(),
				"weight":         positiveNumber(),
				"temperature":    numberRange(30, 45),
				"heart_rate":     intRange(30, 250),
				"blood_pressure": pattern(bloodPressureRE, "blood_pressure must look like 120/80"),
				"vaccinations":   stringList(50, 200),
				"medications":    stringList(50, 200),
				"allergies":      stringList(50, 200),
				"conditions":     stringList(50, 200),
				"notes":          text(1, 1000),
			},
			cross: func(_ *Engine, p Payload, mode Mode, errs Errors) {
				if mode != ModeCreate {
					return
				}
				for _, f := range []string{"height", "weight", "temperature", "heart_rate", "blood_pressure", "notes"} {
					if p.Has(f) {
						return
					}
				}
				errs.setOnce(GeneralField, "at least one measurement or note is required")
			},
		},
		KindClinic: {
			required: []string{"name"},
			fields: map[string]check{
				"name":     text(2, 100),
				"location": text(1, 200),
				"phone":    phone(),
			},
		},
	}
}

func all(checks ...check) check {
	return func(e *Engine, v any) string {
		for _, c := range checks {
			if msg := c(e, v); msg != "" {
				return msg
			}
		}
		return ""
	}
}

func text(min, max int) check {
	return func(_ *Engine, v any) string {
		s, ok := v.(string)
		if !ok {
			return "must be a string"
		}
		n := len([]rune(strings.TrimSpace(s)))
		if n < min {
			return fmt.Sprintf("must be at least %d characters", min)
		}
		if n > max {
			return fmt.Sprintf("must be at most %d characters", max)
		}
		return ""
	}
}

func pattern(re *regexp.Regexp, msg string) check {
	return func(_ *Engine, v any) string {
		s, ok := v.(string)
		if !ok {
			return "must be a string"
		}
		if !re.MatchString(strings.TrimSpace(s)) {
			return msg
		}
		return ""
	}
}

func personName(min, max int) check {
	return func(_ *Engine, v any) string {
		s, ok := v.(string)
		if !ok {
			return "must be a string"
		}
		if !IsValidName(s, min, max) {
			return fmt.Sprintf("must be %d-%d characters of letters, spaces, hyphens, apostrophes or periods", min, max)
		}
		return ""
	}
}

func email() check {
	return func(_ *Engine, v any) string {
		s, ok := v.(string)
		if !ok || !IsValidEmail(s) {
			return "invalid email format"
		}
		return ""
	}
}

func phone() check {
	return func(e *Engine, v any) string {
		s, ok := v.(string)
		if !ok {
			return "must be a string"
		}
		if _, ok := e.NormalizePhone(s); !ok {
			return "invalid phone number format"
		}
		return ""
	}
}

func password() check {
	return func(_ *Engine, v any) string {
		s, ok := v.(string)
		if !ok || !IsStrongPassword(s) {
			return "password must be at least 8 characters and contain upper case, lower case, a digit and a symbol"
		}
		return ""
	}
}

func oneOf(allowed []string) check {
	return func(_ *Engine, v any) string {
		if s, ok := v.(string); ok && IsOneOf(s, allowed) {
			return ""
		}
		return "must be one of: " + strings.Join(allowed, ", ")
	}
}

func positiveID() check {
	return func(_ *Engine, v any) string {
		n, ok := asInt(v)
		if !ok || n < 1 {
			return "must be a positive integer"
		}
		return ""
	}
}

func intRange(min, max int64) check {
	return func(_ *Engine, v any) string {
		n, ok := asInt(v)
		if !ok {
			return "must be an integer"
		}
		if n < min || n > max {
			return fmt.Sprintf("must be between %d and %d", min, max)
		}
		return ""
	}
}

func positiveNumber() check {
	return func(_ *Engine, v any) string {
		f, ok := asFloat(v)
		if !ok {
			return "must be a number"
		}
		if f <= 0 {
			return "must be greater than 0"
		}
		return ""
	}
}

func numberRange(min, max float64) check {
	return func(_ *Engine, v any) string {
		f, ok := asFloat(v)
		if !ok {
			return "must be a number"
		}
		if f < min || f > max {
			return fmt.Sprintf("must be between %g and %g", min, max)
		}
		return ""
	}
}

func stringList(maxItems, maxLen int) check {
	return func(_ *Engine, v any) string {
		items, ok := v.([]any)
		if !ok {
			return "must be a list of strings"
		}
		if len(items) > maxItems {
			return fmt.Sprintf("must have at most %d entries", maxItems)
		}
		for _, it := range items {
			s, ok := it.(string)
			if !ok || strings.TrimSpace(s) == "" || len(s) > maxLen {
				return fmt.Sprintf("entries must be non-empty strings of at most %d characters", maxLen)
			}
		}
		return ""
	}
}

// dateRule layers a semantic check over a parsed date.
type dateRule func(e *Engine, d civil.Date) string

func date(rule dateRule) check {
	return func(e *Engine, v any) string {
		d, ok := asDate(v)
		if !ok {
			return "invalid date format, expected YYYY-MM-DD"
		}
		if rule != nil {
			return rule(e, d)
		}
		return ""
	}
}

func notFuture(e *Engine, d civil.Date) string {
	if d.After(e.Today()) {
		return "date cannot be in the future"
	}
	return ""
}

func notPast(e *Engine, d civil.Date) string {
	if d.Before(e.Today()) {
		return "date cannot be in the past"
	}
	return ""
}

func recentPast(maxDays int) dateRule {
	return func(e *Engine, d civil.Date) string {
		today := e.Today()
		if d.After(today) {
			return "date cannot be in the future"
		}
		if today.DaysSince(d) > maxDays {
			return fmt.Sprintf("date cannot be more than %d days ago", maxDays)
		}
		return ""
	}
}

func motherBirthDate(e *Engine, d civil.Date) string {
	today := e.Today()
	if d.After(today) {
		return "date of birth cannot be in the future"
	}
	age := today.YearsSince(d)
	if age < minMotherAge || age > maxMotherAge {
		return fmt.Sprintf("age must be between %d and %d years", minMotherAge, maxMotherAge)
	}
	return ""
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asDate(v any) (civil.Date, bool) {
	switch d := v.(type) {
	case string:
		return ParseDate(d)
	case civil.Date:
		return d, !d.IsZero()
	}
	return civil.Date{}, false
}
