package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairIsReciprocal(t *testing.T) {
	table := NewPairingTable()

	require.NoError(t, table.Pair("A", "B"))

	partner, paired := table.PartnerOf("A")
	assert.True(t, paired)
	assert.Equal(t, "B", partner, "PartnerOf(A) should be B")

	partner, paired = table.PartnerOf("B")
	assert.True(t, paired)
	assert.Equal(t, "A", partner, "PartnerOf(B) should be A")

	assert.Equal(t, 1, table.Count())
}

func TestPairRejectsSelf(t *testing.T) {
	table := NewPairingTable()

	assert.Error(t, table.Pair("A", "A"), "Pairing a connection with itself should fail")
	_, paired := table.PartnerOf("A")
	assert.False(t, paired, "A failed pairing should leave no entries behind")
}

func TestPairRejectsBusyMembers(t *testing.T) {
	table := NewPairingTable()

	require.NoError(t, table.Pair("A", "B"))

	assert.Error(t, table.Pair("A", "C"), "A connection with a partner cannot be paired again")
	assert.Error(t, table.Pair("C", "B"), "Pairing with an already-paired partner should fail")

	_, paired := table.PartnerOf("C")
	assert.False(t, paired, "The rejected connection should remain unpaired")

	partner, _ := table.PartnerOf("A")
	assert.Equal(t, "B", partner, "The original pair should be untouched by rejected attempts")
}

func TestUnpairRemovesBothDirections(t *testing.T) {
	table := NewPairingTable()

	require.NoError(t, table.Pair("A", "B"))

	partner, paired := table.Unpair("A")
	assert.True(t, paired)
	assert.Equal(t, "B", partner, "Unpair should report the former partner")

	_, paired = table.PartnerOf("A")
	assert.False(t, paired, "PartnerOf(A) should report none after the unpair")
	_, paired = table.PartnerOf("B")
	assert.False(t, paired, "PartnerOf(B) should report none after the unpair")
	assert.Equal(t, 0, table.Count())
}

func TestUnpairIsIdempotent(t *testing.T) {
	table := NewPairingTable()

	require.NoError(t, table.Pair("A", "B"))

	_, paired := table.Unpair("B")
	assert.True(t, paired)

	partner, paired := table.Unpair("B")
	assert.False(t, paired, "A second unpair for the same disconnect must be a no-op")
	assert.Empty(t, partner)

	_, paired = table.Unpair("A")
	assert.False(t, paired, "Unpairing the already-removed partner must be a no-op too")
}

func TestUnpairedMembersCanRepair(t *testing.T) {
	table := NewPairingTable()

	require.NoError(t, table.Pair("A", "B"))
	table.Unpair("A")

	require.NoError(t, table.Pair("A", "C"), "A connection should be free to pair again after an unpair")

	partner, _ := table.PartnerOf("A")
	assert.Equal(t, "C", partner)
}
