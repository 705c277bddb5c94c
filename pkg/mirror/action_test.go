package mirror

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "copy-new", ActionCopyNew.String())
	assert.Equal(t, "delete-dir", ActionDeleteDir.String())
	assert.Equal(t, "unknown_action(99)", ActionKind(99).String())
}

func TestParseActionKind(t *testing.T) {
	kind, err := ParseActionKind("copy-updated")
	require.NoError(t, err)
	assert.Equal(t, ActionCopyUpdated, kind)

	_, err = ParseActionKind("teleport")
	assert.Error(t, err)
}

func TestActionKindJSON(t *testing.T) {
	data, err := json.Marshal(ActionSkip)
	require.NoError(t, err)
	assert.Equal(t, `"skip"`, string(data))

	var kind ActionKind
	require.NoError(t, json.Unmarshal([]byte(`"create-dir"`), &kind))
	assert.Equal(t, ActionCreateDir, kind)
}
