package matcher

import "testing"

func TestTranslateBasic(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		backref bool
	}{
		{`abc`, `abc`, false},
		{`a.c`, `a.c`, false},
		{`a(b)c`, `a\(b\)c`, false},
		{`\(ab\)`, `(ab)`, false},
		{`a\|b`, `a|b`, false},
		{`a|b`, `a\|b`, false},
		{`a\+`, `a+`, false},
		{`a+`, `a\+`, false},
		{`a\{2,3\}`, `a{2,3}`, false},
		{`a{2}`, `a\{2\}`, false},
		{`*ab`, `\*ab`, false},
		{`^*ab`, `^\*ab`, false},
		{`a*b`, `a*b`, false},
		{`^ab`, `^ab`, false},
		{`a^b`, `a\^b`, false},
		{`ab$`, `ab$`, false},
		{`a$b`, `a\$b`, false},
		{`\(a$\)`, `(a$)`, false},
		{`[a-z$^]`, `[a-z$^]`, false},
		{`[]a]`, `[]a]`, false},
		{`[^]a]`, `[^]a]`, false},
		{`[[:digit:]]`, `[[:digit:]]`, false},
		{`\(x\)\1`, `(x)\1`, true},
		{`\<word\>`, `\bword\b`, false},
	}
	for _, tt := range tests {
		got, err := translateBasic(tt.in)
		if err != nil {
			t.Errorf("translateBasic(%q) failed: %v", tt.in, err)
			continue
		}
		if got.pattern != tt.want {
			t.Errorf("translateBasic(%q) = %q, want %q", tt.in, got.pattern, tt.want)
		}
		if got.backref != tt.backref {
			t.Errorf("translateBasic(%q) backref = %v, want %v", tt.in, got.backref, tt.backref)
		}
	}
}

func TestTranslateExtended(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		backref   bool
		hasDollar bool
	}{
		{`a(b|c)+`, `a(b|c)+`, false, false},
		{`(lo)\1`, `(lo)\1`, true, false},
		{`end$`, `end$`, false, true},
		{`[$]`, `[$]`, false, false},
		{`\<w\>`, `\bw\b`, false, false},
	}
	for _, tt := range tests {
		got, err := translateExtended(tt.in)
		if err != nil {
			t.Errorf("translateExtended(%q) failed: %v", tt.in, err)
			continue
		}
		if got.pattern != tt.want || got.backref != tt.backref || got.hasDollar != tt.hasDollar {
			t.Errorf("translateExtended(%q) = %+v, want {%q %v %v}",
				tt.in, got, tt.want, tt.backref, tt.hasDollar)
		}
	}
}

func TestTranslateUnmatchedBracket(t *testing.T) {
	if _, err := translateExtended(`a[b`); err == nil {
		t.Error("translateExtended(a[b) succeeded, want error")
	}
}
