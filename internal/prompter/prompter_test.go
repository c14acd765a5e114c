package prompter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIAskYesNoAcceptsYAndN(t *testing.T) {
	in := bytes.NewBufferString("y\n")
	out := &bytes.Buffer{}
	c := NewCLI(in, out, -1)

	ok, err := c.AskYesNo("continue?")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCLIAskYesNoReprompts(t *testing.T) {
	in := bytes.NewBufferString("bogus\nno\n")
	out := &bytes.Buffer{}
	c := NewCLI(in, out, -1)

	ok, err := c.AskYesNo("continue?")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "please answer y or n")
}

func TestCLIAskPasswordNonTTYReadsLine(t *testing.T) {
	in := bytes.NewBufferString("s3cret\n")
	out := &bytes.Buffer{}
	c := NewCLI(in, out, -1)

	pw, err := c.AskPassword("password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
}

func TestCannedAskYesNoInOrder(t *testing.T) {
	c := &Canned{YesNo: []bool{true, false}}
	v1, err := c.AskYesNo("q1")
	require.NoError(t, err)
	assert.True(t, v1)

	v2, err := c.AskYesNo("q2")
	require.NoError(t, err)
	assert.False(t, v2)

	_, err = c.AskYesNo("q3")
	assert.Error(t, err)
}

func TestCannedAskPasswordInOrder(t *testing.T) {
	c := &Canned{Passwords: []string{"first", "second"}}
	pw1, err := c.AskPassword("p1")
	require.NoError(t, err)
	assert.Equal(t, "first", pw1)

	pw2, err := c.AskPassword("p2")
	require.NoError(t, err)
	assert.Equal(t, "second", pw2)

	_, err = c.AskPassword("p3")
	assert.Error(t, err)
}
