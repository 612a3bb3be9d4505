package services

// MinPasswordScore is the lowest ScorePassword result accepted at sign-up.
const MinPasswordScore = 3

// ScorePassword rates a password from 0 to 5, one point each for: at least 8
// characters, at least 12 characters, mixed case, a digit, and a symbol.
func ScorePassword(pw string) int {
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}

	n := len([]rune(pw))
	score := 0
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}
	if lower && upper {
		score++
	}
	if digit {
		score++
	}
	if symbol {
		score++
	}
	return score
}

// PasswordLabel returns the strength label shown next to a score.
func PasswordLabel(score int) string {
	switch {
	case score <= 1:
		return "Weak"
	case score == 2:
		return "Medium"
	case score == 3:
		return "Strong"
	default:
		return "Unbreakable"
	}
}

// CheckPassword validates a password and its confirmation. A mismatch is
// rejected regardless of strength.
func CheckPassword(pw, confirm string) error {
	if pw != confirm {
		return ErrPasswordMismatch
	}
	if ScorePassword(pw) < MinPasswordScore {
		return ErrWeakPassword
	}
	return nil
}
