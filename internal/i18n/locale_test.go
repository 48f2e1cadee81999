package i18n

import (
	"testing"
)

func TestSpanishLocale(t *testing.T) {
	Init("es")

	tests := []struct {
		id     string
		def    string
		wantEs string
	}{
		{"common.loading", "Loading...", "Cargando..."},
		{"tui.shell.selectProject", "Select project...", "Seleccionar proyecto..."},
		{"tui.role.user", "User", "Usuario"},
		{"tui.role.assistant", "Assistant", "Asistente"},
		{"tui.status.live", "live", "en vivo"},
		{"tui.help.scrollUp", "scroll up", "subir"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := T(tt.id, tt.def)
			if got != tt.wantEs {
				t.Errorf("T(%q) = %q, want %q", tt.id, got, tt.wantEs)
			}
		})
	}
}

func TestEnglishDoesNotReturnSpanish(t *testing.T) {
	Init("en")

	got := T("common.loading", "Loading...")
	if got != "Loading..." {
		t.Errorf("English T(common.loading) = %q, want %q", got, "Loading...")
	}
}

func TestLocaleSwitch(t *testing.T) {
	// Start with English
	Init("en")
	en := T("tui.role.user", "User")
	if en != "User" {
		t.Errorf("English role.user = %q, want %q", en, "User")
	}

	// Switch to Spanish
	Init("es")
	es := T("tui.role.user", "User")
	if es != "Usuario" {
		t.Errorf("Spanish role.user = %q, want %q", es, "Usuario")
	}

	// Switch back to English
	Init("en")
	en2 := T("tui.role.user", "User")
	if en2 != "User" {
		t.Errorf("English role.user after switch = %q, want %q", en2, "User")
	}
}

func TestUntranslatedKeyFallsBack(t *testing.T) {
	Init("es")

	// Use a key that definitely isn't in es.toml
	got := T("some.untranslated.key", "English fallback")
	if got != "English fallback" {
		t.Errorf("untranslated key = %q, want %q", got, "English fallback")
	}
}

func TestSpanishPluralization(t *testing.T) {
	Init("es")

	one := Tn("tui.sessions.count", "{{.Count}} session", "{{.Count}} sessions", 1)
	if one != "1 sesión" {
		t.Errorf("Tn(1) = %q, want %q", one, "1 sesión")
	}

	many := Tn("tui.sessions.count", "{{.Count}} session", "{{.Count}} sessions", 4)
	if many != "4 sesiones" {
		t.Errorf("Tn(4) = %q, want %q", many, "4 sesiones")
	}
}
