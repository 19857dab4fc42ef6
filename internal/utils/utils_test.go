package utils

import "testing"

func TestBaseName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "Test plain name",
			in:   "kernel32.dll",
			want: "kernel32.dll",
		},
		{
			name: "Test windows path",
			in:   `C:\Windows\System32\kernel32.dll`,
			want: "kernel32.dll",
		},
		{
			name: "Test unix path",
			in:   "/usr/lib/libSystem.B.dylib",
			want: "libSystem.B.dylib",
		},
		{
			name: "Test mixed separators",
			in:   `C:\Users\test/sample.exe`,
			want: "sample.exe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BaseName(tt.in); got != tt.want {
				t.Errorf("BaseName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConvertStrToInt(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want uint64
	}{
		{
			name: "Test hex with prefix",
			in:   "0x401000",
			want: 0x401000,
		},
		{
			name: "Test bare hex",
			in:   "deadbeef",
			want: 0xdeadbeef,
		},
		{
			name: "Test decimal",
			in:   "1024",
			want: 1024,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertStrToInt(tt.in)
			if err != nil {
				t.Fatalf("ConvertStrToInt(%q) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ConvertStrToInt(%q) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestStrSliceHas(t *testing.T) {
	slice := []string{"kernel32.dll", "ntdll.dll"}
	if !StrSliceHas(slice, "KERNEL32.DLL") {
		t.Error("StrSliceHas should match case-insensitively")
	}
	if StrSliceHas(slice, "user32.dll") {
		t.Error("StrSliceHas should not match missing item")
	}
}
