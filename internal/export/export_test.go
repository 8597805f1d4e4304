package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderDigestHTML(t *testing.T) {
	html, err := RenderDigestHTML(TemplateData{
		Title:       "Message digest: approved",
		Bucket:      "approved",
		GeneratedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Messages: []TemplateMessage{
			{
				ID:        "m1",
				Content:   "Grüße & <script>alert(1)</script>",
				Timestamp: "2026-03-13T12:00:00Z",
				Tags:      []string{"news"},
				ImageURLs: []string{"https://cdn.example.com/a.png"},
			},
			{ID: "m2", Content: "plain"},
		},
	})
	if err != nil {
		t.Fatalf("RenderDigestHTML failed: %v", err)
	}

	for _, want := range []string{
		"Message digest: approved",
		"Mar 14, 2026 09:30",
		"2 messages",
		"Grüße &amp; &lt;script&gt;",
		`<span class="tag">news</span>`,
		`href="https://cdn.example.com/a.png"`,
		"m2",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered digest missing %q", want)
		}
	}
	if strings.Contains(html, "<script>alert") {
		t.Error("message content was not escaped")
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"a-b_c.d~e", "a-b_c.d~e"},
		{"<p>", "%3Cp%3E"},
		{"Grüße", "Gr%C3%BC%C3%9Fe"},
	}
	for _, tt := range tests {
		if got := percentEncodeForDataURL(tt.input); got != tt.expected {
			t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Message digest: approved", "Message-digest-approved"},
		{"///", "digest"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
