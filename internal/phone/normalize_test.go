package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		region string
		want   string
	}{
		{name: "indian national number", input: "98765 43210", region: "IN", want: "+919876543210"},
		{name: "already e164", input: "+919876543210", region: "IN", want: "+919876543210"},
		{name: "default region", input: "9876543210", region: "", want: "+919876543210"},
		{name: "garbage kept", input: "  call me  ", region: "IN", want: "call me"},
		{name: "empty", input: "   ", region: "IN", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeE164(tt.input, tt.region); got != tt.want {
				t.Fatalf("NormalizeE164(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromWhatsAppID(t *testing.T) {
	if got := FromWhatsAppID("919876543210"); got != "+919876543210" {
		t.Fatalf("unexpected wa_id normalisation: %q", got)
	}
	if got := FromWhatsAppID(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
