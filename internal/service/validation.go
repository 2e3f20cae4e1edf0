package service

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"opsconsole/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// CJK ideographs, Latin letters and underscore
	operationNamePattern = regexp.MustCompile(`^[\p{Han}A-Za-z_]+$`)
	variableNamePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	placeholderPattern   = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

	validate = newValidator()
)

// Field order used when reporting operation validation failures
var operationFields = []string{"name", "source", "status", "variables", "remark"}

var templateFields = []string{"template_type", "name", "subject", "content", "status"}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("opname", func(fl validator.FieldLevel) bool {
		return operationNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("varname", func(fl validator.FieldLevel) bool {
		return variableNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// OperationDraft is a create/edit submission for an Operation
type OperationDraft struct {
	Name      string            `json:"name" validate:"required,max=50,opname"`
	Source    string            `json:"source" validate:"required,max=500"`
	Status    string            `json:"status" validate:"required,oneof=enabled disabled"`
	Remark    string            `json:"remark" validate:"max=200"`
	Variables map[string]string `json:"variables" validate:"required,min=1,dive,keys,varname,endkeys,oneof=string number boolean date datetime"`

	// failures found while decoding the raw submission
	typeErrors FieldErrors
}

// ParseOperationDraft decodes a loosely typed submission (as posted by the console form).
// A field carrying the wrong JSON type is recorded as a type failure and skips the
// later checks for that field.
func ParseOperationDraft(raw map[string]interface{}) OperationDraft {
	var d OperationDraft

	str := func(field string, dst *string) {
		v, ok := raw[field]
		if !ok || v == nil {
			return
		}
		s, ok := v.(string)
		if !ok {
			d.typeErrors = append(d.typeErrors, FieldError{Field: field, Message: field + " must be a string"})
			return
		}
		*dst = s
	}
	str("name", &d.Name)
	str("source", &d.Source)
	str("status", &d.Status)
	str("remark", &d.Remark)

	if v, ok := raw["variables"]; ok && v != nil {
		obj, ok := v.(map[string]interface{})
		if !ok {
			d.typeErrors = append(d.typeErrors, FieldError{Field: "variables", Message: "variables must be an object of name to type"})
		} else {
			d.Variables = make(map[string]string, len(obj))
			for name, typ := range obj {
				s, ok := typ.(string)
				if !ok {
					d.typeErrors = append(d.typeErrors, FieldError{Field: "variables", Message: fmt.Sprintf("type of variable %q must be a string", name)})
					d.Variables = nil
					break
				}
				d.Variables[name] = s
			}
		}
	}
	return d
}

func (d *OperationDraft) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Source = strings.TrimSpace(d.Source)
	d.Status = strings.TrimSpace(d.Status)
	d.Remark = strings.TrimSpace(d.Remark)
}

// ValidateOperationDraft runs, per field: type, required, length, format (name) and
// uniqueness (name, ignoring editingID). The first failing check of a field is reported;
// all failing fields are returned together.
func ValidateOperationDraft(draft OperationDraft, existing []model.Operation, editingID *uuid.UUID) FieldErrors {
	draft.normalize()

	failed := make(map[string]string)
	for _, te := range draft.typeErrors {
		if _, dup := failed[te.Field]; !dup {
			failed[te.Field] = te.Message
		}
	}

	if err := validate.Struct(draft); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				field := rootField(fe.Field())
				if _, dup := failed[field]; dup {
					continue
				}
				failed[field] = operationMessage(field, fe)
			}
		}
	}

	if _, bad := failed["name"]; !bad {
		for _, op := range existing {
			if editingID != nil && op.ID == *editingID {
				continue
			}
			if op.Name == draft.Name {
				failed["name"] = fmt.Sprintf("an operation named %q already exists", draft.Name)
				break
			}
		}
	}

	return ordered(failed, operationFields)
}

func operationMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return "at least one variable is required"
	case "opname":
		return "name may only contain CJK characters, Latin letters and underscores"
	case "varname":
		return fmt.Sprintf("variable name %q is invalid", fe.Value())
	case "oneof":
		if field == "variables" {
			return fmt.Sprintf("variable %s has unsupported type %q (expected one of %s)", variableKey(fe.Field()), fe.Value(), fe.Param())
		}
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s is invalid", field)
}

// TemplateDraft is a create/edit submission for a Template.
// Status is only honoured on create; later changes go through SetTemplateStatus.
type TemplateDraft struct {
	TemplateType string `json:"template_type" validate:"required,oneof=email chat"`
	Name         string `json:"name" validate:"required,max=100"`
	Subject      string `json:"subject" validate:"required_if=TemplateType email,max=255"`
	Content      string `json:"content" validate:"required"`
	Status       string `json:"status" validate:"omitempty,oneof=enabled disabled"`
}

// ValidateTemplateDraft checks the draft fields and that every {{placeholder}} in
// subject/content is a variable declared on the owning operation.
func ValidateTemplateDraft(draft TemplateDraft, op model.Operation) FieldErrors {
	failed := make(map[string]string)

	if err := validate.Struct(draft); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				field := rootField(fe.Field())
				if _, dup := failed[field]; dup {
					continue
				}
				failed[field] = templateMessage(field, fe)
			}
		}
	}

	declared := op.VariableMap()
	for field, text := range map[string]string{"subject": draft.Subject, "content": draft.Content} {
		if _, bad := failed[field]; bad {
			continue
		}
		for _, name := range ExtractPlaceholders(text) {
			if _, ok := declared[name]; !ok {
				failed[field] = fmt.Sprintf("unknown variable %q (not declared on operation %s)", name, op.Name)
				break
			}
		}
	}

	return ordered(failed, templateFields)
}

func templateMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s is invalid", field)
}

// ExtractPlaceholders returns the distinct {{name}} placeholders of text, sorted
func ExtractPlaceholders(text string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// rootField strips map/slice subscripts: "variables[foo]" -> "variables"
func rootField(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		return field[:i]
	}
	return field
}

func variableKey(field string) string {
	i := strings.IndexByte(field, '[')
	if i < 0 {
		return field
	}
	return strings.TrimSuffix(field[i+1:], "]")
}

func ordered(failed map[string]string, order []string) FieldErrors {
	var out FieldErrors
	for _, field := range order {
		if msg, ok := failed[field]; ok {
			out = append(out, FieldError{Field: field, Message: msg})
		}
	}
	return out
}
