package address

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/internal/testdb"
	pkgerrors "github.com/angelmondragon/marketcore-backend/pkg/errors"
)

func TestResolveOwnedAddress(t *testing.T) {
	client := testdb.Open(t)
	userID := uuid.New()
	addr := testdb.Address(t, client.DB(), userID)

	resolver, err := NewResolver(client.DB())
	require.NoError(t, err)

	snap, err := resolver.Resolve(context.Background(), userID, addr.ID)
	require.NoError(t, err)
	assert.Equal(t, "1 Market St", snap.Line1)
	assert.Equal(t, "US", snap.Country)
}

func TestResolveRejectsForeignOrMissing(t *testing.T) {
	client := testdb.Open(t)
	addr := testdb.Address(t, client.DB(), uuid.New())
	resolver, err := NewResolver(client.DB())
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), uuid.New(), addr.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAddress))

	_, err = resolver.Resolve(context.Background(), addr.UserID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAddress))

	_, err = resolver.Resolve(context.Background(), addr.UserID, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAddress))
}
