package media

import (
	"errors"
	"testing"
)

func TestSourcePolicyCheck(t *testing.T) {
	open := SourcePolicy{}
	restricted := SourcePolicy{AllowedHosts: []string{"cdn.example.com", ".media.example.org"}}

	tests := []struct {
		name   string
		policy SourcePolicy
		src    string
		ok     bool
	}{
		{"https", open, "https://cdn.example.com/a.mp4", true},
		{"http with port", open, "http://videos.local:8080/a.webm", true},
		{"upper case scheme", open, "HTTPS://cdn.example.com/a.mp4", true},
		{"empty", open, "", false},
		{"leading dash", open, "-show_entries", false},
		{"file url", open, "file:///etc/passwd", false},
		{"absolute path", open, "/var/lib/video.mp4", false},
		{"relative path", open, "a.mp4", false},
		{"concat protocol", open, "concat:a.mp4|b.mp4", false},
		{"subfile protocol", open, "subfile:,start,0,end,100,:/etc/passwd", false},
		{"missing host", open, "http:///a.mp4", false},
		{"credentials", open, "https://user:pw@cdn.example.com/a.mp4", false},
		{"allowed exact host", restricted, "https://cdn.example.com/a.mp4", true},
		{"allowed subdomain", restricted, "https://eu.media.example.org/a.mp4", true},
		{"allowed bare domain", restricted, "https://media.example.org/a.mp4", true},
		{"host not allowed", restricted, "http://10.0.0.5/a.mp4", false},
		{"suffix without dot", restricted, "https://evilcdn.example.com/a.mp4", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Check(tt.src)
			if tt.ok && err != nil {
				t.Errorf("Check(%q) = %v, want nil", tt.src, err)
			}
			if !tt.ok && !errors.Is(err, ErrSourceRejected) {
				t.Errorf("Check(%q) = %v, want ErrSourceRejected", tt.src, err)
			}
		})
	}
}
