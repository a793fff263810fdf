package call

import "testing"

func TestVerifiesIdentity(t *testing.T) {
	d := Debtor{Name: "Jordan Reeve", AccountNumber: "5033-4329"}
	cases := []struct {
		utterance string
		want      bool
	}{
		{"yes, speaking", true},
		{"this is Jordan", true},
		{"that's me", true},
		{"the last four are 4329", true},
		{"4329", true},
		{"", false},
		{"no", false},
		{"you have the wrong number", false},
		{"never heard of them", false},
		{"who is this?", false},
		// a denial wins even when an affirmation word also appears
		{"yes, but you have the wrong person", false},
		{"the last four are 9999", false},
	}
	for _, tc := range cases {
		if got := verifiesIdentity(tc.utterance, d); got != tc.want {
			t.Errorf("verifiesIdentity(%q) = %v, want %v", tc.utterance, got, tc.want)
		}
	}
}

func TestVerifiesIdentity_ShortAccountNumber(t *testing.T) {
	d := Debtor{AccountNumber: "42"}
	if verifiesIdentity("42", d) {
		t.Fatal("accounts with fewer than four digits must not verify by digits")
	}
}
