package collector

import "testing"

func TestStripTags(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"a<br/>b", "a b"},
		{"fish &amp; chips", "fish & chips"},
		{"  spaced   out  ", "spaced out"},
	}
	for _, tc := range cases {
		if got := stripTags(tc.in); got != tc.want {
			t.Fatalf("stripTags(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"President met with allies today", "en"},
		{"Сьогодні відбулася зустріч із президентом", "uk"},
		{"Сегодня состоялась встреча с президентом", "ru"},
		{"12345 !!!", "und"},
		{"", "und"},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.in); got != tc.want {
			t.Fatalf("DetectLanguage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
