package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"", false, false},
	}
	for _, tc := range cases {
		t.Setenv("TEST_BOOL", tc.value)
		if got := ParseBoolEnv("TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
		}
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	if got := EnvOrDefault("TEST_STR", "fallback"); got != "value" {
		t.Errorf("EnvOrDefault = %q", got)
	}
	t.Setenv("TEST_STR", "")
	if got := EnvOrDefault("TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("EnvOrDefault unset = %q", got)
	}
}
