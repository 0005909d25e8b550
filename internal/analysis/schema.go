package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cloudsolutiongmbh/tenderav2-sub000/pkg/models"
)

// Verdict is a validated single-criterion evaluation before the criterion's
// key, title and weight are attached.
type Verdict struct {
	Status    string
	Comment   *string
	Answer    *string
	Score     *float64
	Citations []models.Citation
}

// ValidateStandardResult decodes a standard result from model JSON. A bare
// object and a single-element array holding an object are both accepted.
func ValidateStandardResult(raw json.RawMessage) (models.StandardResult, error) {
	obj, err := unwrapObject(raw)
	if err != nil {
		return models.StandardResult{}, err
	}

	var out models.StandardResult
	if out.Summary, err = obj.str("summary"); err != nil {
		return models.StandardResult{}, err
	}

	milestones, err := obj.list("milestones")
	if err != nil {
		return models.StandardResult{}, err
	}
	out.Milestones = make([]models.Milestone, 0, len(milestones))
	for _, m := range milestones {
		var item models.Milestone
		if item.Title, err = m.str("title"); err != nil {
			return models.StandardResult{}, err
		}
		if item.Date, err = m.optStr("date"); err != nil {
			return models.StandardResult{}, err
		}
		if item.Citation, err = m.optCitation("citation"); err != nil {
			return models.StandardResult{}, err
		}
		out.Milestones = append(out.Milestones, item)
	}

	requirements, err := obj.list("requirements")
	if err != nil {
		return models.StandardResult{}, err
	}
	out.Requirements = make([]models.Requirement, 0, len(requirements))
	for _, r := range requirements {
		var item models.Requirement
		if item.Title, err = r.str("title"); err != nil {
			return models.StandardResult{}, err
		}
		if item.Category, err = r.optStr("category"); err != nil {
			return models.StandardResult{}, err
		}
		if item.Notes, err = r.optStr("notes"); err != nil {
			return models.StandardResult{}, err
		}
		if item.Citation, err = r.optCitation("citation"); err != nil {
			return models.StandardResult{}, err
		}
		out.Requirements = append(out.Requirements, item)
	}

	questions, err := obj.list("openQuestions")
	if err != nil {
		return models.StandardResult{}, err
	}
	out.OpenQuestions = make([]models.OpenQuestion, 0, len(questions))
	for _, q := range questions {
		var item models.OpenQuestion
		if item.Question, err = q.str("question"); err != nil {
			return models.StandardResult{}, err
		}
		if item.Citation, err = q.optCitation("citation"); err != nil {
			return models.StandardResult{}, err
		}
		out.OpenQuestions = append(out.OpenQuestions, item)
	}

	metadata, err := obj.list("metadata")
	if err != nil {
		return models.StandardResult{}, err
	}
	out.Metadata = make([]models.MetadataEntry, 0, len(metadata))
	for _, m := range metadata {
		var item models.MetadataEntry
		if item.Label, err = m.str("label"); err != nil {
			return models.StandardResult{}, err
		}
		if item.Value, err = m.scalarText("value"); err != nil {
			return models.StandardResult{}, err
		}
		if item.Citation, err = m.optCitation("citation"); err != nil {
			return models.StandardResult{}, err
		}
		out.Metadata = append(out.Metadata, item)
	}

	return out, nil
}

// ValidateCriterionVerdict decodes one criterion verdict from model JSON.
// Boolean and numeric answers are converted to text.
func ValidateCriterionVerdict(raw json.RawMessage) (Verdict, error) {
	obj, err := unwrapObject(raw)
	if err != nil {
		return Verdict{}, err
	}

	var v Verdict
	if v.Status, err = obj.str("status"); err != nil {
		return Verdict{}, err
	}
	switch v.Status {
	case models.VerdictFound, models.VerdictNotFound, models.VerdictPartial:
	default:
		return Verdict{}, &SchemaValidationError{
			Field:  obj.path("status"),
			Reason: fmt.Sprintf("must be one of found, not_found, partial; got %q", v.Status),
		}
	}
	if v.Comment, err = obj.optStr("comment"); err != nil {
		return Verdict{}, err
	}
	if v.Answer, err = obj.optScalarText("answer"); err != nil {
		return Verdict{}, err
	}
	if v.Score, err = obj.optNumber("score"); err != nil {
		return Verdict{}, err
	}

	citations, err := obj.list("citations")
	if err != nil {
		return Verdict{}, err
	}
	v.Citations = make([]models.Citation, 0, len(citations))
	for _, c := range citations {
		cit, err := c.citation()
		if err != nil {
			return Verdict{}, err
		}
		v.Citations = append(v.Citations, cit)
	}
	return v, nil
}

// ValidateCriterion checks a criterion definition before it is stored.
func ValidateCriterion(c models.Criterion) error {
	if strings.TrimSpace(c.Key) == "" {
		return &SchemaValidationError{Field: "key", Reason: "is required"}
	}
	if strings.TrimSpace(c.Title) == "" {
		return &SchemaValidationError{Field: "title", Reason: "is required"}
	}
	switch c.AnswerType {
	case models.AnswerTypeBoolean, models.AnswerTypeScale, models.AnswerTypeText:
	default:
		return &SchemaValidationError{
			Field:  "answer_type",
			Reason: fmt.Sprintf("must be one of boolean, scale, text; got %q", c.AnswerType),
		}
	}
	if c.Weight < 0 || c.Weight > 100 {
		return &SchemaValidationError{Field: "weight", Reason: fmt.Sprintf("must be between 0 and 100; got %d", c.Weight)}
	}
	return nil
}

// object is a decoded JSON object together with its location in the document.
type object struct {
	at     string
	fields map[string]json.RawMessage
}

func (o object) path(field string) string {
	if o.at == "" {
		return field
	}
	return o.at + "." + field
}

// unwrapObject accepts an object or a one-element array whose element is an object.
func unwrapObject(raw json.RawMessage) (object, error) {
	switch leading(raw) {
	case '{':
		return decodeObject(raw, "")
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return object{}, &SchemaValidationError{Field: "$", Reason: err.Error()}
		}
		if len(arr) == 1 && leading(arr[0]) == '{' {
			return decodeObject(arr[0], "")
		}
	}
	return object{}, &SchemaValidationError{
		Field:  "$",
		Reason: "expected an object or a single-element array holding an object",
	}
}

func decodeObject(raw json.RawMessage, at string) (object, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return object{}, &SchemaValidationError{Field: orRoot(at), Reason: err.Error()}
	}
	return object{at: at, fields: fields}, nil
}

func orRoot(at string) string {
	if at == "" {
		return "$"
	}
	return at
}

func leading(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// lookup returns the raw field value. Absent fields and JSON null both report false.
func (o object) lookup(field string) (json.RawMessage, bool) {
	raw, ok := o.fields[field]
	if !ok || leading(raw) == 'n' {
		return nil, false
	}
	return raw, true
}

func (o object) str(field string) (string, error) {
	raw, ok := o.lookup(field)
	if !ok {
		return "", &SchemaValidationError{Field: o.path(field), Reason: "is required"}
	}
	return o.decodeString(field, raw)
}

func (o object) optStr(field string) (*string, error) {
	raw, ok := o.lookup(field)
	if !ok {
		return nil, nil
	}
	s, err := o.decodeString(field, raw)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (o object) decodeString(field string, raw json.RawMessage) (string, error) {
	if leading(raw) != '"' {
		return "", &SchemaValidationError{Field: o.path(field), Reason: "must be a string"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &SchemaValidationError{Field: o.path(field), Reason: err.Error()}
	}
	return s, nil
}

func (o object) scalarText(field string) (string, error) {
	s, err := o.optScalarText(field)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", &SchemaValidationError{Field: o.path(field), Reason: "is required"}
	}
	return *s, nil
}

// optScalarText reads a string, boolean or number as text.
func (o object) optScalarText(field string) (*string, error) {
	raw, ok := o.lookup(field)
	if !ok {
		return nil, nil
	}
	var text string
	switch c := leading(raw); {
	case c == '"':
		s, err := o.decodeString(field, raw)
		if err != nil {
			return nil, err
		}
		text = s
	case c == 't' || c == 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, &SchemaValidationError{Field: o.path(field), Reason: err.Error()}
		}
		text = strconv.FormatBool(b)
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, &SchemaValidationError{Field: o.path(field), Reason: err.Error()}
		}
		text = n.String()
	default:
		return nil, &SchemaValidationError{Field: o.path(field), Reason: "must be a string, boolean or number"}
	}
	return &text, nil
}

func (o object) optNumber(field string) (*float64, error) {
	raw, ok := o.lookup(field)
	if !ok {
		return nil, nil
	}
	c := leading(raw)
	if c != '-' && (c < '0' || c > '9') {
		return nil, &SchemaValidationError{Field: o.path(field), Reason: "must be a number"}
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &SchemaValidationError{Field: o.path(field), Reason: err.Error()}
	}
	return &f, nil
}

// list returns the elements of a required array of objects.
func (o object) list(field string) ([]object, error) {
	raw, ok := o.lookup(field)
	if !ok {
		return nil, &SchemaValidationError{Field: o.path(field), Reason: "is required"}
	}
	if leading(raw) != '[' {
		return nil, &SchemaValidationError{Field: o.path(field), Reason: "must be an array"}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, &SchemaValidationError{Field: o.path(field), Reason: err.Error()}
	}

	out := make([]object, 0, len(elems))
	for i, elem := range elems {
		at := fmt.Sprintf("%s[%d]", o.path(field), i)
		if leading(elem) != '{' {
			return nil, &SchemaValidationError{Field: at, Reason: "must be an object"}
		}
		item, err := decodeObject(elem, at)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (o object) optCitation(field string) (*models.Citation, error) {
	raw, ok := o.lookup(field)
	if !ok {
		return nil, nil
	}
	if leading(raw) != '{' {
		return nil, &SchemaValidationError{Field: o.path(field), Reason: "must be an object"}
	}
	inner, err := decodeObject(raw, o.path(field))
	if err != nil {
		return nil, err
	}
	c, err := inner.citation()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// citation validates o itself as {page >= 1, quote non-empty}.
func (o object) citation() (models.Citation, error) {
	raw, ok := o.lookup("page")
	if !ok {
		return models.Citation{}, &SchemaValidationError{Field: o.path("page"), Reason: "is required"}
	}
	page, err := o.optNumber("page")
	if err != nil {
		return models.Citation{}, err
	}
	if *page != math.Trunc(*page) || *page < 1 || *page > math.MaxInt32 {
		return models.Citation{}, &SchemaValidationError{
			Field:  o.path("page"),
			Reason: fmt.Sprintf("must be a positive integer; got %s", bytes.TrimSpace(raw)),
		}
	}
	quote, err := o.str("quote")
	if err != nil {
		return models.Citation{}, err
	}
	if strings.TrimSpace(quote) == "" {
		return models.Citation{}, &SchemaValidationError{Field: o.path("quote"), Reason: "must not be empty"}
	}
	return models.Citation{Page: int(*page), Quote: quote}, nil
}
