package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"user_1/url-audit/42.json":   "user_1/url-audit/42.json",
		"/user_1/url-audit/42.json":  "user_1/url-audit/42.json",
		"user_1/../../etc/passwd":    "etc/passwd",
		"user_1//url-audit/./a.json": "user_1/url-audit/a.json",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanKey(in), in)
	}
}

func TestObjectURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://minio:9000/audits/u/a.json", ObjectURL("http://minio:9000/", "audits", "u/a.json"))
	assert.Equal(t, "https://cdn.example.com/audits/u/a.json", ObjectURL("https://cdn.example.com", "audits", "u/a.json"))
}
