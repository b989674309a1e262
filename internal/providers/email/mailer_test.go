package email

import "testing"

func TestResolveLocale(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "en"},
		{"en", "en"},
		{"en-US", "en"},
		{"id", "id"},
		{"id-ID", "id"},
		{"es-MX", "es"},
		{"pt-BR", "pt-BR"},
		{"fr", "en"},
		{"not a locale", "en"},
	}
	for _, tc := range cases {
		if got := ResolveLocale(tc.in); got != tc.want {
			t.Fatalf("ResolveLocale(%q): got %q want %q", tc.in, got, tc.want)
		}
	}
}
