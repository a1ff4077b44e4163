package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "a lovely teapot", "a lovely teapot"},
		{"trims", "  hi  ", "hi"},
		{"strips tags", "<b>bold</b> move", "bold move"},
		{"drops scripts", `<script>alert("x")</script>hello`, "hello"},
		{"drops handlers", `<img src=x onerror="alert(1)">`, ""},
		{"keeps ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"keeps apostrophe and quotes", `Bob's "Lego" & more`, `Bob's "Lego" & more`},
		{"keeps comparison", "budget < 50", "budget < 50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestTexts(t *testing.T) {
	got := Texts([]string{"tea", "<i></i>", "  books "})
	assert.Equal(t, []string{"tea", "books"}, got)
}

func TestURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://shop.example/item?id=1", "https://shop.example/item?id=1"},
		{"  http://shop.example/a  ", "http://shop.example/a"},
		{"javascript:alert(1)", ""},
		{"data:text/html,hi", ""},
		{"/relative/path", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URL(tt.in), "input %q", tt.in)
	}
}
