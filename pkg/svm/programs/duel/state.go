package duel

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/X1-Duel/internal/types"
)

// Stake limits and timing.
const (
	MinStake        uint64 = 10_000_000      // 0.01 SOL
	MaxStake        uint64 = 100_000_000_000 // 100 SOL
	DefaultFeeBps   uint16 = 500
	MaxFeeBps       uint16 = 10_000
	MatchExpiration int64  = 86_400 // seconds a match may wait for an opponent
)

// Account sizes including the 8-byte discriminator.
const (
	DiscriminatorSize  = 8
	PlatformConfigSize = DiscriminatorSize + 32*3 + 2 + 1 + 8*4 + 1
	GameMatchSize      = DiscriminatorSize + 32 + 32*2 + 8 + 1 + 32 + 8*3 + 8*2 + 1 + 1
	VaultSize          = DiscriminatorSize
)

// GameMatch field offsets for memcmp queries.
const (
	GameMatchPlayer1Offset = DiscriminatorSize + 32
	GameMatchPlayer2Offset = GameMatchPlayer1Offset + 32
	GameMatchStatusOffset  = GameMatchPlayer2Offset + 32 + 8
)

// Discriminator identifies the record type stored in an account.
type Discriminator [DiscriminatorSize]byte

func accountDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Record discriminators.
var (
	PlatformConfigDiscriminator = accountDiscriminator("PlatformConfig")
	GameMatchDiscriminator      = accountDiscriminator("GameMatch")
	VaultDiscriminator          = accountDiscriminator("Vault")
)

// MatchStatus is the state of a GameMatch.
type MatchStatus uint8

const (
	StatusWaitingForOpponent MatchStatus = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
	StatusClaimed
)

var statusNames = [...]string{"WaitingForOpponent", "InProgress", "Completed", "Cancelled", "Claimed"}

func (s MatchStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("MatchStatus(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s MatchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MatchStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = MatchStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown match status %q", text)
}

// IsTerminal reports whether no further transition is possible.
func (s MatchStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusClaimed
}

// PlatformConfig is the singleton settings record.
type PlatformConfig struct {
	Admin              types.Pubkey `json:"admin"`
	GameAuthority      types.Pubkey `json:"gameAuthority"`
	Treasury           types.Pubkey `json:"treasury"`
	FeeBps             uint16       `json:"feeBps"`
	Paused             bool         `json:"paused"`
	TotalMatches       uint64       `json:"totalMatches"`
	MatchesCompleted   uint64       `json:"matchesCompleted"`
	TotalVolume        uint64       `json:"totalVolume"`
	TotalFeesCollected uint64       `json:"totalFeesCollected"`
	Bump               uint8        `json:"bump"`
}

// MarshalWithEncoder writes the borsh body without the discriminator.
func (c *PlatformConfig) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, pk := range []types.Pubkey{c.Admin, c.GameAuthority, c.Treasury} {
		if err := enc.WriteBytes(pk[:], false); err != nil {
			return err
		}
	}
	if err := enc.WriteUint16(c.FeeBps, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteBool(c.Paused); err != nil {
		return err
	}
	for _, v := range []uint64{c.TotalMatches, c.MatchesCompleted, c.TotalVolume, c.TotalFeesCollected} {
		if err := enc.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	return enc.WriteUint8(c.Bump)
}

// UnmarshalWithDecoder reads the borsh body without the discriminator.
func (c *PlatformConfig) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, pk := range []*types.Pubkey{&c.Admin, &c.GameAuthority, &c.Treasury} {
		if *pk, err = readPubkey(dec); err != nil {
			return err
		}
	}
	if c.FeeBps, err = dec.ReadUint16(bin.LE); err != nil {
		return err
	}
	if c.Paused, err = dec.ReadBool(); err != nil {
		return err
	}
	for _, v := range []*uint64{&c.TotalMatches, &c.MatchesCompleted, &c.TotalVolume, &c.TotalFeesCollected} {
		if *v, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
	}
	c.Bump, err = dec.ReadUint8()
	return err
}

// GameMatch is the per-match record.
type GameMatch struct {
	MatchID     [32]byte     `json:"matchId"`
	Player1     types.Pubkey `json:"player1"`
	Player2     types.Pubkey `json:"player2"`
	StakeAmount uint64       `json:"stakeAmount"`
	Status      MatchStatus  `json:"status"`
	Winner      types.Pubkey `json:"winner"`
	CreatedAt   int64        `json:"createdAt"`
	StartedAt   int64        `json:"startedAt"`
	EndedAt     int64        `json:"endedAt"`
	FeeAmount   uint64       `json:"feeAmount"`
	PrizeAmount uint64       `json:"prizeAmount"`
	Bump        uint8        `json:"bump"`
	EscrowBump  uint8        `json:"escrowBump"`
}

// Pot is the total both players deposit.
func (m *GameMatch) Pot() (uint64, error) {
	pot := m.StakeAmount * 2
	if pot/2 != m.StakeAmount {
		return 0, ErrOverflow
	}
	return pot, nil
}

// IsExpired reports whether a waiting match is past its join deadline.
func (m *GameMatch) IsExpired(now int64) bool {
	return m.Status == StatusWaitingForOpponent && now > m.CreatedAt+MatchExpiration
}

// MarshalWithEncoder writes the borsh body without the discriminator.
func (m *GameMatch) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(m.MatchID[:], false); err != nil {
		return err
	}
	for _, pk := range []types.Pubkey{m.Player1, m.Player2} {
		if err := enc.WriteBytes(pk[:], false); err != nil {
			return err
		}
	}
	if err := enc.WriteUint64(m.StakeAmount, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint8(uint8(m.Status)); err != nil {
		return err
	}
	if err := enc.WriteBytes(m.Winner[:], false); err != nil {
		return err
	}
	for _, ts := range []int64{m.CreatedAt, m.StartedAt, m.EndedAt} {
		if err := enc.WriteInt64(ts, bin.LE); err != nil {
			return err
		}
	}
	if err := enc.WriteUint64(m.FeeAmount, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(m.PrizeAmount, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint8(m.Bump); err != nil {
		return err
	}
	return enc.WriteUint8(m.EscrowBump)
}

// UnmarshalWithDecoder reads the borsh body without the discriminator.
func (m *GameMatch) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	raw, err := dec.ReadBytes(32)
	if err != nil {
		return err
	}
	copy(m.MatchID[:], raw)
	if m.Player1, err = readPubkey(dec); err != nil {
		return err
	}
	if m.Player2, err = readPubkey(dec); err != nil {
		return err
	}
	if m.StakeAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	status, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	if int(status) >= len(statusNames) {
		return fmt.Errorf("invalid match status %d", status)
	}
	m.Status = MatchStatus(status)
	if m.Winner, err = readPubkey(dec); err != nil {
		return err
	}
	for _, ts := range []*int64{&m.CreatedAt, &m.StartedAt, &m.EndedAt} {
		if *ts, err = dec.ReadInt64(bin.LE); err != nil {
			return err
		}
	}
	if m.FeeAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if m.PrizeAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if m.Bump, err = dec.ReadUint8(); err != nil {
		return err
	}
	m.EscrowBump, err = dec.ReadUint8()
	return err
}

type borshRecord interface {
	MarshalWithEncoder(enc *bin.Encoder) error
	UnmarshalWithDecoder(dec *bin.Decoder) error
}

// encodeRecord returns discriminator + borsh body, padded to size.
func encodeRecord(disc Discriminator, rec borshRecord, size int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(disc[:])
	if err := rec.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	if buf.Len() > size {
		return nil, fmt.Errorf("record is %d bytes, account holds %d", buf.Len(), size)
	}
	out := make([]byte, size)
	copy(out, buf.Bytes())
	return out, nil
}

// decodeRecord checks the discriminator and decodes the body.
func decodeRecord(data []byte, disc Discriminator, rec borshRecord) error {
	if len(data) < DiscriminatorSize {
		return ErrAccountNotInitialized
	}
	if !bytes.Equal(data[:DiscriminatorSize], disc[:]) {
		return ErrAccountDiscriminatorMismatch
	}
	if err := rec.UnmarshalWithDecoder(bin.NewBorshDecoder(data[DiscriminatorSize:])); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountDiscriminatorMismatch, err)
	}
	return nil
}

// DecodePlatformConfig parses PlatformConfig account data.
func DecodePlatformConfig(data []byte) (*PlatformConfig, error) {
	var c PlatformConfig
	if err := decodeRecord(data, PlatformConfigDiscriminator, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// EncodePlatformConfig serializes a PlatformConfig into account data.
func EncodePlatformConfig(c *PlatformConfig) ([]byte, error) {
	return encodeRecord(PlatformConfigDiscriminator, c, PlatformConfigSize)
}

// DecodeGameMatch parses GameMatch account data.
func DecodeGameMatch(data []byte) (*GameMatch, error) {
	var m GameMatch
	if err := decodeRecord(data, GameMatchDiscriminator, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeGameMatch serializes a GameMatch into account data.
func EncodeGameMatch(m *GameMatch) ([]byte, error) {
	return encodeRecord(GameMatchDiscriminator, m, GameMatchSize)
}

// EncodeVault returns the data of a Vault account.
func EncodeVault() []byte {
	out := make([]byte, VaultSize)
	copy(out, VaultDiscriminator[:])
	return out
}

// IsVault reports whether data holds a Vault record.
func IsVault(data []byte) bool {
	return len(data) == VaultSize && bytes.Equal(data, VaultDiscriminator[:])
}

func readPubkey(dec *bin.Decoder) (types.Pubkey, error) {
	raw, err := dec.ReadBytes(types.PubkeySize)
	if err != nil {
		return types.Pubkey{}, err
	}
	return types.PubkeyFromBytes(raw)
}
