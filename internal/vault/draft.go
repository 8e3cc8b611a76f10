package vault

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MinMasterPasswordLength is the setup policy minimum
	MinMasterPasswordLength = 12

	// MinChangedPasswordLength is the minimum accepted when changing the master password
	MinChangedPasswordLength = 8

	masterSpecialChars = `!@#$%^&*(),.?":{}|<>`
)

// Draft carries the fields of a record about to be created
type Draft struct {
	Name        string
	AccountName string
	URL         string
	Password    string
	Category    Category
}

// NewDeviceDraft creates a draft for a device record
func NewDeviceDraft(name, password string) Draft {
	return Draft{Name: name, Password: password, Category: CategoryDevice}
}

// NewApplicationDraft creates a draft for an application record
func NewApplicationDraft(name, accountName, url, password string) Draft {
	return Draft{
		Name:        name,
		AccountName: accountName,
		URL:         url,
		Password:    password,
		Category:    CategoryApplication,
	}
}

// Normalize trims the text fields and drops fields the category ignores
func (d Draft) Normalize() Draft {
	d.Name = strings.TrimSpace(d.Name)
	d.AccountName = strings.TrimSpace(d.AccountName)
	d.URL = strings.TrimSpace(d.URL)
	if d.Category == CategoryDevice {
		d.AccountName = ""
		d.URL = ""
	}
	return d
}

// Validate applies the required-field rules
func (d Draft) Validate() error {
	d = d.Normalize()

	if d.Category != CategoryDevice && d.Category != CategoryApplication {
		return NewValidationError("category", "must be device or application")
	}
	if d.Name == "" {
		return NewValidationError("name", "name is required")
	}
	if d.Password == "" {
		return NewValidationError("password", "password is required")
	}
	if d.Category == CategoryApplication && d.AccountName == "" {
		return NewValidationError("accountName", "account name is required for applications")
	}
	return nil
}

// CheckUnique rejects a draft that collides with an existing record. Devices
// are unique by name, applications by name and account name, both compared
// case-insensitively; the two categories never collide with each other.
func CheckUnique(existing []*Password, d Draft) error {
	d = d.Normalize()

	for _, p := range existing {
		if p.Category != d.Category {
			continue
		}
		if !strings.EqualFold(p.Name, d.Name) {
			continue
		}
		if d.Category == CategoryDevice {
			return fmt.Errorf("%w: a device with this name already exists", ErrDuplicateEntry)
		}
		if strings.EqualFold(p.AccountName(), d.AccountName) {
			return fmt.Errorf("%w: an account with this application name and account name already exists", ErrDuplicateEntry)
		}
	}
	return nil
}

// ValidateMasterPassword checks a new master password against the setup policy
func ValidateMasterPassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinMasterPasswordLength {
		return NewValidationError("masterPassword", "master password must be at least 12 characters long")
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(masterSpecialChars, r):
			special = true
		}
	}

	switch {
	case !upper:
		return NewValidationError("masterPassword", "master password must contain at least one uppercase letter")
	case !lower:
		return NewValidationError("masterPassword", "master password must contain at least one lowercase letter")
	case !digit:
		return NewValidationError("masterPassword", "master password must contain at least one number")
	case !special:
		return NewValidationError("masterPassword", "master password must contain at least one special character")
	}
	return nil
}

// ValidateMasterPasswordChange checks the confirmation and minimum length of a
// changed master password
func ValidateMasterPasswordChange(newPassword, confirm string) error {
	if newPassword != confirm {
		return NewValidationError("masterPassword", "new passwords do not match")
	}
	if utf8.RuneCountInString(newPassword) < MinChangedPasswordLength {
		return NewValidationError("masterPassword", "new password must be at least 8 characters long")
	}
	return nil
}
