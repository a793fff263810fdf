package call

import "strings"

// affirmations accepted as identity confirmation when the debtor does not
// volunteer the account digits.
var verifyAffirmations = []string{
	"yes", "yeah", "yep", "speaking", "this is", "that's me", "thats me", "correct", "i am",
}

var verifyDenials = []string{
	"no", "wrong number", "wrong person", "not me", "who is this", "never heard",
}

// verifiesIdentity decides whether an utterance confirms we are speaking with
// the named debtor: the last four digits of the account number always
// suffice, otherwise a plain affirmation that is not also a denial.
func verifiesIdentity(utterance string, d Debtor) bool {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return false
	}
	if last4 := lastFour(d.AccountNumber); last4 != "" && strings.Contains(digitsOnly(text), last4) {
		return true
	}
	for _, p := range verifyDenials {
		if strings.Contains(text, p) {
			return false
		}
	}
	for _, p := range verifyAffirmations {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func lastFour(account string) string {
	d := digitsOnly(account)
	if len(d) < 4 {
		return ""
	}
	return d[len(d)-4:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
