package chat

import "regexp"

// maxPasswordBytes is the most bcrypt will hash.
const maxPasswordBytes = 72

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9]{3,20}$`)
	letterRe   = regexp.MustCompile(`[a-zA-Z]`)
	digitRe    = regexp.MustCompile(`[0-9]`)
)

// ValidateUsername accepts 3-20 ASCII letters and digits.
func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return ErrUsernameInvalid
	}
	return nil
}

// ValidatePassword requires 8 to 72 bytes with a letter and a digit.
func ValidatePassword(password string) error {
	if len(password) < 8 || len(password) > maxPasswordBytes {
		return ErrPasswordInvalid
	}
	if !letterRe.MatchString(password) || !digitRe.MatchString(password) {
		return ErrPasswordInvalid
	}
	return nil
}
