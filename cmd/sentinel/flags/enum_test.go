package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumValueSet(t *testing.T) {
	var dest string
	e := &EnumValue{
		Name:        "log-format",
		Enum:        []string{"text", "json"},
		Value:       "text",
		Destination: &dest,
	}

	require.NoError(t, e.Set("json"))
	assert.Equal(t, "json", dest)
	assert.Equal(t, "json", e.String())

	err := e.Set("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text, json")
	assert.Equal(t, "json", dest)
}

func TestEnumValueGenericFlagSeedsDefault(t *testing.T) {
	var dest string
	flag := (&EnumValue{
		Name:        "log-format",
		Enum:        []string{"text", "json"},
		Value:       "text",
		Destination: &dest,
	}).GenericFlag()

	assert.Equal(t, "log-format", flag.Name)
	assert.Equal(t, "text", dest)
	assert.Equal(t, "text", flag.Value.String())
}
