package version

import "testing"

func TestInfoString(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "1.2.0"}, "1.2.0"},
		{Info{Version: "1.2.0", Commit: "abc"}, "1.2.0 (abc)"},
		{Info{Version: "dev", Commit: "0123456789abcdef"}, "dev (0123456)"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestGetIsStable(t *testing.T) {
	a, b := Get(), Get()
	if a != b {
		t.Fatalf("Get() changed between calls: %+v vs %+v", a, b)
	}
	if a.GoVersion == "" {
		t.Fatal("GoVersion is empty")
	}
}
