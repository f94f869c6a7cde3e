package duel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/X1-Duel/internal/types"
)

func TestRecordSizes(t *testing.T) {
	assert.Equal(t, 140, PlatformConfigSize)
	assert.Equal(t, 187, GameMatchSize)
	assert.Equal(t, 8, VaultSize)

	cfg, err := EncodePlatformConfig(&PlatformConfig{FeeBps: DefaultFeeBps})
	require.NoError(t, err)
	assert.Len(t, cfg, PlatformConfigSize)

	m, err := EncodeGameMatch(&GameMatch{})
	require.NoError(t, err)
	assert.Len(t, m, GameMatchSize)
}

func TestGameMatchLayout(t *testing.T) {
	m := &GameMatch{
		MatchID:     [32]byte{1},
		Player1:     types.Pubkey{2},
		Player2:     types.Pubkey{3},
		StakeAmount: 0x0102030405060708,
		Status:      StatusCompleted,
		Winner:      types.Pubkey{3},
		CreatedAt:   -1,
		Bump:        254,
		EscrowBump:  253,
	}
	data, err := EncodeGameMatch(m)
	require.NoError(t, err)

	assert.Equal(t, GameMatchDiscriminator[:], data[:8])
	assert.Equal(t, byte(1), data[8])
	assert.Equal(t, byte(2), data[40])
	assert.Equal(t, byte(3), data[72])
	assert.Equal(t, byte(0x08), data[104], "stake is little endian")
	assert.Equal(t, byte(StatusCompleted), data[112])
	assert.Equal(t, 112, GameMatchStatusOffset)
	assert.Equal(t, 40, GameMatchPlayer1Offset)
	assert.Equal(t, byte(3), data[113])
	assert.Equal(t, byte(0xff), data[145])
	assert.Equal(t, byte(254), data[185])
	assert.Equal(t, byte(253), data[186])

	decoded, err := DecodeGameMatch(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestDecodeRejectsWrongRecord(t *testing.T) {
	cfg, err := EncodePlatformConfig(&PlatformConfig{})
	require.NoError(t, err)

	_, err = DecodeGameMatch(cfg)
	assert.ErrorIs(t, err, ErrAccountDiscriminatorMismatch)

	_, err = DecodePlatformConfig(nil)
	assert.ErrorIs(t, err, ErrAccountNotInitialized)

	assert.True(t, IsVault(EncodeVault()))
	assert.False(t, IsVault(cfg))
}

func TestComputeFee(t *testing.T) {
	tests := []struct {
		pot, fee, prize uint64
		bps             uint16
	}{
		{200_000_000, 10_000_000, 190_000_000, 500},
		{200_000_000, 5_000_000, 195_000_000, 250},
		{20_000_001, 1_000_000, 19_000_001, 500},
		{199, 9, 190, 500},
		{1_000, 0, 1_000, 0},
		{1_000, 1_000, 0, MaxFeeBps},
		{math.MaxUint64, math.MaxUint64 / 20, math.MaxUint64 - math.MaxUint64/20, 500},
	}
	for _, tt := range tests {
		fee, prize, err := ComputeFee(tt.pot, tt.bps)
		require.NoError(t, err)
		assert.Equal(t, tt.fee, fee, "fee of %d at %d bps", tt.pot, tt.bps)
		assert.Equal(t, tt.prize, prize)
		assert.Equal(t, tt.pot, fee+prize)
	}

	_, _, err := ComputeFee(1, MaxFeeBps+1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestPotOverflow(t *testing.T) {
	m := &GameMatch{StakeAmount: math.MaxUint64/2 + 1}
	_, err := m.Pot()
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMatchPredicates(t *testing.T) {
	p1, p2 := types.Pubkey{1}, types.Pubkey{2}
	m := &GameMatch{Player1: p1, Status: StatusWaitingForOpponent, CreatedAt: 1000}

	assert.True(t, m.IsPlayer(p1))
	assert.False(t, m.IsPlayer(types.ZeroPubkey), "empty seat is not a player")
	assert.False(t, m.IsExpired(1000+MatchExpiration))
	assert.True(t, m.IsExpired(1001+MatchExpiration))

	m.Player2, m.Status, m.Winner = p2, StatusCompleted, p2
	assert.True(t, m.IsPlayer(p2))
	assert.True(t, m.IsWinner(p2))
	assert.False(t, m.IsWinner(p1))
	assert.False(t, m.IsExpired(1_000_000), "only waiting matches expire")
}

func TestMatchStatusText(t *testing.T) {
	text, err := StatusInProgress.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "InProgress", string(text))

	var s MatchStatus
	require.NoError(t, s.UnmarshalText([]byte("Claimed")))
	assert.Equal(t, StatusClaimed, s)
	assert.Error(t, s.UnmarshalText([]byte("Lost")))
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusCompleted.IsTerminal())
}

func TestInstructionDecoding(t *testing.T) {
	admin := types.Pubkey{9}
	ix, err := NewUpdatePlatformInstruction(admin, UpdatePlatformArgs{NewAdmin: &admin, Paused: new(bool)})
	require.NoError(t, err)

	kind, dec, err := DecodeInstruction(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, KindUpdatePlatform, kind)

	var args UpdatePlatformArgs
	require.NoError(t, args.decode(dec))
	require.NotNil(t, args.NewAdmin)
	assert.Equal(t, admin, *args.NewAdmin)
	assert.Nil(t, args.NewGameAuthority)
	require.NotNil(t, args.Paused)
	assert.False(t, *args.Paused)

	_, _, err = DecodeInstruction([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInstructionFallbackNotFound)

	bad := append([]byte(nil), ix.Data[:8]...)
	bad = append(bad, 7)
	_, dec, err = DecodeInstruction(bad)
	require.NoError(t, err)
	assert.ErrorIs(t, args.decode(dec), ErrInstructionDidNotDeserialize)
}

func TestInstructionTitles(t *testing.T) {
	assert.Equal(t, "InitializePlatform", KindInitializePlatform.title())
	assert.Equal(t, "ClaimWinnings", KindClaimWinnings.title())
}

func TestErrorByCode(t *testing.T) {
	e, ok := ErrorByCode(6009)
	require.True(t, ok)
	assert.Same(t, ErrMatchFull, e)
	assert.Equal(t, "Error Code: MatchFull. Error Number: 6009. Error Message: Match already has two players.", e.Error())

	_, ok = ErrorByCode(42)
	assert.False(t, ok)
}
