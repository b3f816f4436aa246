package theme

import "testing"

func TestStateColor(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"idle", string(ColorIdle)},
		{"scanning", string(ColorScanning)},
		{"armed", string(ColorArmed)},
		{"bogus", string(ColorDefault)},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			if got := string(StateColor(tt.state)); got != tt.want {
				t.Errorf("StateColor(%q) = %s, want %s", tt.state, got, tt.want)
			}
		})
	}
}

func TestStateGlyphDistinct(t *testing.T) {
	seen := map[string]string{}
	for _, s := range []string{"idle", "scanning", "armed"} {
		g := StateGlyph(s)
		if prev, ok := seen[g]; ok {
			t.Errorf("glyph %q shared by %s and %s", g, prev, s)
		}
		seen[g] = s
	}
}
