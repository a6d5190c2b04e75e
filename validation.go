package vitaauth

import (
	"net/mail"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minPasswordLength = 6
	maxPasswordBytes  = 72
	minFullNameLength = 2
	maxFullNameLength = 100
	maxEmailLength    = 254
)

// NormalizeEmail trims and lowercases an email address. Lookups and
// uniqueness checks always use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateRegistration checks a registration and returns the input to hand
// to the user provider, minus the password hash.
func validateRegistration(in RegisterInput) (CreateUserInput, error) {
	verr := &ValidationError{}

	out := CreateUserInput{
		FullName:   strings.TrimSpace(in.FullName),
		Email:      NormalizeEmail(in.Email),
		Phone:      strings.TrimSpace(in.Phone),
		Gender:     in.Gender,
		Role:       in.Role,
		BloodGroup: in.BloodGroup,
		Location:   trimLocation(in.Location),
		PhotoURL:   strings.TrimSpace(in.PhotoURL),
	}

	checkFullName(verr, out.FullName)
	if !validEmail(out.Email) {
		verr.add("email", "must be a valid email address")
	}

	switch n := utf8.RuneCountInString(in.Password); {
	case n < minPasswordLength:
		verr.add("password", "must be at least 6 characters")
	case len(in.Password) > maxPasswordBytes:
		verr.add("password", "must be at most 72 bytes")
	}

	if out.Role == "" {
		out.Role = RoleDonor
	}
	switch {
	case !out.Role.Valid():
		verr.add("role", "unknown role")
	case out.Role == RoleAdmin:
		verr.add("role", "admin accounts cannot self-register")
	}

	checkPhone(verr, out.Phone)
	if !out.Gender.Valid() {
		verr.add("gender", "must be male, female, or other")
	}
	if !out.BloodGroup.Valid() {
		verr.add("bloodGroup", "unknown blood group")
	}
	checkPhotoURL(verr, out.PhotoURL)

	if err := verr.orNil(); err != nil {
		return CreateUserInput{}, err
	}
	return out, nil
}

func validatePatch(p ProfilePatch) (ProfilePatch, error) {
	verr := &ValidationError{}
	if p.Empty() {
		verr.add("body", "no patchable fields")
		return p, verr
	}

	if p.FullName != nil {
		name := strings.TrimSpace(*p.FullName)
		checkFullName(verr, name)
		p.FullName = &name
	}
	if p.Phone != nil {
		phone := strings.TrimSpace(*p.Phone)
		checkPhone(verr, phone)
		p.Phone = &phone
	}
	if p.Gender != nil && !p.Gender.Valid() {
		verr.add("gender", "must be male, female, or other")
	}
	if p.BloodGroup != nil && !p.BloodGroup.Valid() {
		verr.add("bloodGroup", "unknown blood group")
	}
	if p.Location != nil {
		loc := trimLocation(*p.Location)
		p.Location = &loc
	}
	if p.PhotoURL != nil {
		photo := strings.TrimSpace(*p.PhotoURL)
		checkPhotoURL(verr, photo)
		p.PhotoURL = &photo
	}

	return p, verr.orNil()
}

func checkFullName(verr *ValidationError, name string) {
	n := utf8.RuneCountInString(name)
	if n < minFullNameLength || n > maxFullNameLength {
		verr.add("fullName", "must be between 2 and 100 characters")
	}
}

func checkPhone(verr *ValidationError, phone string) {
	if phone == "" {
		return
	}
	digits := 0
	for _, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			verr.add("phone", "may contain digits, spaces, and + - ( ) only")
			return
		}
	}
	if digits < 6 || digits > 15 {
		verr.add("phone", "must contain between 6 and 15 digits")
	}
}

func checkPhotoURL(verr *ValidationError, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		verr.add("photoURL", "must be an absolute http(s) URL")
	}
}

func validEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && strings.Contains(email[at+1:], ".")
}

func trimLocation(l Location) Location {
	return Location{
		Division: strings.TrimSpace(l.Division),
		District: strings.TrimSpace(l.District),
		Upazila:  strings.TrimSpace(l.Upazila),
	}
}
