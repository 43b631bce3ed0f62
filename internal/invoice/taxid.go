package invoice

import (
	"errors"
	"strconv"
	"strings"
)

var errNotDigits = errors.New("tax id must contain only digits")

// DIAN modulo 11 weights, applied from the rightmost digit.
var dvWeights = [...]int{3, 7, 13, 17, 19, 23, 29, 37, 41, 43, 47, 53, 59, 67, 71}

// CheckDigit computes the DIAN verification digit of a NIT.
func CheckDigit(nit string) (string, error) {
	if nit == "" || len(nit) > len(dvWeights) {
		return "", errNotDigits
	}

	sum := 0
	for i := 0; i < len(nit); i++ {
		c := nit[len(nit)-1-i]
		if c < '0' || c > '9' {
			return "", errNotDigits
		}

		sum += int(c-'0') * dvWeights[i]
	}

	r := sum % 11
	if r > 1 {
		r = 11 - r
	}

	return strconv.Itoa(r), nil
}

// SplitNIT separates "900123456-8" into the number and its check digit.
// Dots and spaces are dropped.
func SplitNIT(raw string) (string, string) {
	clean := strings.NewReplacer(".", "", " ", "").Replace(raw)

	nit, dv, found := strings.Cut(clean, "-")
	if !found {
		return clean, ""
	}

	return nit, dv
}

// Normalize splits an embedded check digit off NIT tax ids and fills it when missing.
func (p *Party) Normalize() {
	if p.Scheme != SchemeNIT {
		p.TaxID = strings.TrimSpace(p.TaxID)
		return
	}

	nit, dv := SplitNIT(p.TaxID)
	p.TaxID = nit

	if p.CheckDigit == "" {
		p.CheckDigit = dv
	}

	if p.CheckDigit == "" {
		if d, err := CheckDigit(nit); err == nil {
			p.CheckDigit = d
		}
	}
}

// ValidTaxID checks an identification number against the rules of its scheme.
// NIT numbers must carry the matching check digit.
func ValidTaxID(scheme IDScheme, id, dv string) error {
	switch scheme {
	case SchemeNIT:
		want, err := CheckDigit(id)
		if err != nil {
			return FieldError{Field: "tax_id", Message: err.Error()}
		}

		if dv != want {
			return FieldError{Field: "check_digit", Message: "does not match tax id " + id}
		}
	case SchemeCC:
		if len(id) < 3 || len(id) > 10 || !isDigits(id) {
			return FieldError{Field: "tax_id", Message: "must be 3 to 10 digits"}
		}
	case SchemeCE, SchemePassport:
		if id == "" || len(id) > 20 {
			return FieldError{Field: "tax_id", Message: "must be 1 to 20 characters"}
		}
	default:
		return FieldError{Field: "scheme", Message: "unsupported identification scheme " + string(scheme)}
	}

	return nil
}

func validateParty(field string, p Party) []error {
	var errs []error

	fail := func(f, msg string) {
		errs = append(errs, FieldError{Field: field + "." + f, Message: msg})
	}

	if strings.TrimSpace(p.LegalName) == "" {
		fail("legal_name", "is required")
	}

	if err := ValidTaxID(p.Scheme, p.TaxID, p.CheckDigit); err != nil {
		var fe FieldError
		if errors.As(err, &fe) {
			fail(fe.Field, fe.Message)
		}
	}

	if p.Address.Country == "" {
		fail("address.country", "is required")
	}

	if p.Email != "" && !strings.Contains(p.Email, "@") {
		fail("email", "is not an email address")
	}

	return errs
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return s != ""
}
