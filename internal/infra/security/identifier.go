package security

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/arklim/identity-verification/internal/core/domain"
)

// ErrInvalidIdentifier reports a phone number or email that fails format checks.
var ErrInvalidIdentifier = errors.New("invalid identifier format")

// IdentifierValidator normalizes one kind of login identifier.
type IdentifierValidator interface {
	Kind() domain.IdentifierKind
	Normalize(raw string) (string, error)
}

// vnMobile matches Vietnamese mobile numbers after separators are stripped.
var vnMobile = regexp.MustCompile(`^(?:\+84|84|0)([35789][0-9]{8})$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")

// PhoneValidator accepts Vietnamese mobile numbers and renders them as +84xxxxxxxxx.
type PhoneValidator struct{}

func (PhoneValidator) Kind() domain.IdentifierKind { return domain.IdentifierPhone }

func (PhoneValidator) Normalize(raw string) (string, error) {
	cleaned := phoneSeparators.Replace(strings.TrimSpace(raw))
	m := vnMobile.FindStringSubmatch(cleaned)
	if m == nil {
		return "", ErrInvalidIdentifier
	}
	return "+84" + m[1], nil
}

// EmailValidator lower-cases addresses accepted by validator's email rule.
type EmailValidator struct {
	validate *validator.Validate
}

// NewEmailValidator constructs an EmailValidator.
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{validate: validator.New()}
}

func (*EmailValidator) Kind() domain.IdentifierKind { return domain.IdentifierEmail }

func (v *EmailValidator) Normalize(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := v.validate.Var(email, "required,email,max=254"); err != nil {
		return "", ErrInvalidIdentifier
	}
	return email, nil
}

// IdentifierResolver routes raw identifiers to the matching validator.
// Input containing '@' is treated as an email; anything else as a phone number.
type IdentifierResolver struct {
	primary    domain.IdentifierKind
	validators map[domain.IdentifierKind]IdentifierValidator
}

// NewIdentifierResolver builds a resolver whose registration identifier is primary.
func NewIdentifierResolver(primary domain.IdentifierKind, validators ...IdentifierValidator) *IdentifierResolver {
	if len(validators) == 0 {
		validators = []IdentifierValidator{PhoneValidator{}, NewEmailValidator()}
	}
	if primary != domain.IdentifierEmail {
		primary = domain.IdentifierPhone
	}

	byKind := make(map[domain.IdentifierKind]IdentifierValidator, len(validators))
	for _, v := range validators {
		byKind[v.Kind()] = v
	}
	return &IdentifierResolver{primary: primary, validators: byKind}
}

// Primary returns the identifier kind required at registration.
func (r *IdentifierResolver) Primary() domain.IdentifierKind {
	return r.primary
}

// Resolve detects the identifier kind and normalizes it.
func (r *IdentifierResolver) Resolve(raw string) (domain.IdentifierKind, string, error) {
	kind := domain.IdentifierPhone
	if strings.Contains(raw, "@") {
		kind = domain.IdentifierEmail
	}

	normalized, err := r.Normalize(kind, raw)
	if err != nil {
		return "", "", err
	}
	return kind, normalized, nil
}

// Normalize validates raw as an identifier of the given kind.
func (r *IdentifierResolver) Normalize(kind domain.IdentifierKind, raw string) (string, error) {
	v, ok := r.validators[kind]
	if !ok {
		return "", ErrInvalidIdentifier
	}
	return v.Normalize(raw)
}
