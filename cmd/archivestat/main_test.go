package main

import "testing"

func TestMaskPassword(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://user:secret@db:5432/news?sslmode=disable", "postgres://user:***@db:5432/news?sslmode=disable"},
		{"postgres://user@db/news", "postgres://user@db/news"},
		{"host=db user=x", "host=db user=x"},
	}
	for _, tt := range tests {
		if got := maskPassword(tt.in); got != tt.want {
			t.Errorf("maskPassword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
