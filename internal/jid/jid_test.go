package jid

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"15550001111@s.whatsapp.net",
		"15550001111:0@s.whatsapp.net",
		"15550002222:5@lid",
		"120363000000000000@g.us",
	}
	for _, s := range cases {
		j, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if got := j.String(); got != s {
			t.Errorf("Parse(%q).String() = %q, want %q", s, got, s)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"no-at-sign", "@server", "user@", "user:bad@server"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", s)
		}
	}
}

func TestADString(t *testing.T) {
	j := NewAD("15550001111", 3)
	if got := j.ADString(); got != "15550001111.3" {
		t.Errorf("ADString() = %q, want %q", got, "15550001111.3")
	}
}

func TestToNonAD(t *testing.T) {
	j := JID{User: "15550001111", Device: 2, Server: ServerDefault}
	n := j.ToNonAD()
	if n.Device != 0 {
		t.Errorf("ToNonAD() kept device %d", n.Device)
	}
	if n.String() != "15550001111@s.whatsapp.net" {
		t.Errorf("ToNonAD().String() = %q", n.String())
	}
}
