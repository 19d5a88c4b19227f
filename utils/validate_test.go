package utils

import "testing"

func TestValidateMobile(t *testing.T) {
	valid := []string{
		"+14155552671",
		"14155552671",
		"+8613800138000",
		"1234567", // 最短 7 位
	}
	for _, m := range valid {
		if !ValidateMobile(m) {
			t.Errorf("ValidateMobile(%q) = false, want true", m)
		}
	}

	invalid := []string{
		"",
		"+0123456789", // 首位不能是 0
		"123456",      // 太短
		"+123456789012345678",
		"+1415555abcd",
		"+1 415 555 2671", // 不允许空格
	}
	for _, m := range invalid {
		if ValidateMobile(m) {
			t.Errorf("ValidateMobile(%q) = true, want false", m)
		}
	}
}

func TestNormalizeKeyword(t *testing.T) {
	cases := map[string]string{
		"pay":       "PAY",
		"  Help  ":  "HELP",
		"CALL":      "CALL",
		"pay later": "PAY LATER",
	}
	for in, want := range cases {
		if got := NormalizeKeyword(in); got != want {
			t.Errorf("NormalizeKeyword(%q) = %q, want %q", in, got, want)
		}
	}
}
