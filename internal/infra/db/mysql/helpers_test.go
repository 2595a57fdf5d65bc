package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringOrDash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", stringOrDash(""))
	assert.Equal(t, "-", stringOrDash("   "))
	assert.Equal(t, "scan", stringOrDash("scan"))
}

func TestNullValues(t *testing.T) {
	t.Parallel()

	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("x").Valid)
}

func TestParseRowIDAndLists(t *testing.T) {
	t.Parallel()

	id, ok := parseRowID(" 7 ")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	_, ok = parseRowID("row-7")
	assert.False(t, ok)

	assert.Equal(t, []string{"#main", "img"}, decodeList(encodeList([]string{"#main", "img"})))
	assert.JSONEq(t, `{"raw":"boom"}`, detailsJSON("boom"))
}
