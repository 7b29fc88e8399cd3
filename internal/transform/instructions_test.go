package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestComposeInstructions(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		system   string
		contexts []string
		want     string
	}{
		{"nothing extra", "base\n\n", "", nil, "base\n\n"},
		{"blank extras", "base", "  ", []string{"", "\n"}, "base"},
		{"system only", "base\n", " sys ", nil, "base\n\nsys"},
		{"ordering", "base", "sys", []string{"ctx1", " ctx2 "}, "base\n\nsys\n\nContext:\nctx1\n\nContext:\nctx2"},
		{"empty base", "", "sys", []string{"c"}, "sys\n\nContext:\nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposeInstructions(tt.base, tt.system, tt.contexts...))
		})
	}
}

func TestSystemText(t *testing.T) {
	assert.Equal(t, "plain", SystemText(gjson.Parse(`"plain"`)))
	assert.Equal(t, "a\n\nb", SystemText(gjson.Parse(`[{"type":"text","text":"a"},{"type":"text","text":""},"b"]`)))
	assert.Equal(t, "", SystemText(gjson.Parse(`{"text":"object"}`)))
	assert.Equal(t, "", SystemText(gjson.Result{}))
}
