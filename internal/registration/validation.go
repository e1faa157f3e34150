package registration

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/eventease/internal/model"
)

// 参加人数の上下限。
const (
	MinAttendees = 1
	MaxAttendees = 10
)

// fieldLimit は任意入力フィールドの最大文字数。
type fieldLimit struct {
	value   string
	max     int
	message string
}

// validate はフィールド単位の検証を行い、全てのエラーメッセージを返す。
func validate(r *model.Registration) []string {
	var errs []string

	errs = append(errs, validateName(r.FirstName, "First name")...)
	errs = append(errs, validateName(r.LastName, "Last name")...)

	switch {
	case r.Email == "":
		errs = append(errs, "Email address is required.")
	case !isValidEmail(r.Email):
		errs = append(errs, "Please enter a valid email address.")
	case utf8.RuneCountInString(r.Email) > 100:
		errs = append(errs, "Email address cannot exceed 100 characters.")
	}

	switch {
	case r.PhoneNumber == "":
		errs = append(errs, "Phone number is required.")
	case !isValidPhone(r.PhoneNumber):
		errs = append(errs, "Please enter a valid phone number.")
	case utf8.RuneCountInString(r.PhoneNumber) > 20:
		errs = append(errs, "Phone number cannot exceed 20 characters.")
	}

	if r.NumberOfAttendees < MinAttendees || r.NumberOfAttendees > MaxAttendees {
		errs = append(errs, "Number of attendees must be between 1 and 10.")
	}

	for _, f := range []fieldLimit{
		{r.Company, 100, "Company name cannot exceed 100 characters."},
		{r.JobTitle, 50, "Job title cannot exceed 50 characters."},
		{r.SpecialRequirements, 500, "Special requirements cannot exceed 500 characters."},
		{r.Comments, 1000, "Additional comments cannot exceed 1000 characters."},
	} {
		if utf8.RuneCountInString(f.value) > f.max {
			errs = append(errs, f.message)
		}
	}

	if !r.AgreeToTerms {
		errs = append(errs, "You must agree to the terms and conditions.")
	}

	return errs
}

func validateName(name, label string) []string {
	if name == "" {
		return []string{label + " is required."}
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
		return []string{label + " must be between 2 and 50 characters."}
	}
	return nil
}

// isValidEmail は表示名や山括弧を含まない単一のアドレスのみ受け付ける。
func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email
}

// isValidPhone は数字と + - . ( ) 空白のみで構成され、数字を7桁以上含む番号を受け付ける。
func isValidPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case unicode.IsDigit(r) && r <= unicode.MaxASCII:
			digits++
		case strings.ContainsRune("+-.() ", r):
		default:
			return false
		}
	}
	return digits >= 7
}

// sanitize は自由記述フィールドを無害化し、前後の空白を取り除く。
func (c *Coordinator) sanitize(r *model.Registration) {
	clean := func(s string) string {
		if c.sanitizer == nil {
			return strings.TrimSpace(s)
		}
		return c.sanitizer.Sanitize(s)
	}
	r.FirstName = clean(r.FirstName)
	r.LastName = clean(r.LastName)
	r.Company = clean(r.Company)
	r.JobTitle = clean(r.JobTitle)
	r.SpecialRequirements = clean(r.SpecialRequirements)
	r.Comments = clean(r.Comments)
	r.Email = strings.TrimSpace(r.Email)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
}
