// Package validation содержит функции валидации входных данных.
package validation

import "regexp"

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9]{1,20}$`)
)

// IsEmail проверяет, является ли идентификатор участника адресом электронной почты.
func IsEmail(memberID string) bool {
	return emailPattern.MatchString(memberID)
}

// IsPhoneNumber проверяет, является ли идентификатор участника номером телефона.
func IsPhoneNumber(memberID string) bool {
	return phonePattern.MatchString(memberID)
}
