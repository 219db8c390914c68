package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupUser(t *testing.T) {
	u, err := LookupUser("root")
	require.NoError(t, err)
	assert.Equal(t, "root", u.Name)
	assert.Equal(t, uint32(0), u.UID)

	uX, err := LookupUserID(0)
	require.NoError(t, err)
	assert.Equal(t, u, uX)
}

func TestLookupGroup(t *testing.T) {
	g, err := LookupGroup("root")
	require.NoError(t, err)
	assert.Equal(t, GroupRecord{Name: "root", GID: 0}, g)

	gX, err := LookupGroupID(0)
	require.NoError(t, err)
	assert.Equal(t, g, gX)
}

func TestLookupNotFound(t *testing.T) {
	_, err := LookupUser("nslcd-no-such-user")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = LookupUserID(4242424)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = LookupGroup("nslcd-no-such-group")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = LookupGroupID(4242424)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
