package auction_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pulsantiera/auction"
)

func TestPatch_AddParticipantIsIdempotent(t *testing.T) {
	s := &auction.Session{ID: "a1"}
	joined := time.Now()
	s.Apply(auction.AddParticipant(auction.Participant{Name: "Alice", Email: "alice@example.com", JoinedAt: joined}))
	s.Apply(auction.AddParticipant(auction.Participant{Name: "Alice", Email: "other@example.com"}))

	assert.Len(t, s.Participants, 1)
	assert.Equal(t, "alice@example.com", s.Participants[0].Email)
	assert.Equal(t, uint64(2), s.Version)
}

func TestPatch_RemoveParticipant(t *testing.T) {
	s := &auction.Session{ID: "a1"}
	s.Apply(
		auction.AddParticipant(auction.Participant{Name: "Alice"}),
		auction.AddParticipant(auction.Participant{Name: "Bob"}),
	)
	s.Apply(auction.RemoveParticipant("Alice"))

	assert.Len(t, s.Participants, 1)
	assert.Equal(t, "Bob", s.Participants[0].Name)
}

func TestPatch_TakenLotsStayUnique(t *testing.T) {
	s := &auction.Session{ID: "a1"}
	s.Apply(auction.AddTakenLot("Maignan"))
	s.Apply(auction.AddTakenLot("Maignan"))

	assert.Equal(t, []string{"Maignan"}, s.TakenLots)
	assert.True(t, s.IsTaken("Maignan"))
	assert.False(t, s.IsTaken("Bastoni"))
}

func TestPatch_AppendSaleFillsTimestamp(t *testing.T) {
	s := &auction.Session{ID: "a1"}
	s.Apply(auction.AppendSale(auction.Sale{Lot: "Maignan", Price: 10, Buyer: "Alice"}))

	assert.Len(t, s.SalesHistory, 1)
	assert.False(t, s.SalesHistory[0].SoldAt.IsZero())
}

func TestPatch_EveryCommitBumpsVersionOnce(t *testing.T) {
	s := &auction.Session{ID: "a1"}
	s.Apply(
		auction.SetCurrentLot("Maignan"),
		auction.SetCurrentBid(5),
		auction.SetCurrentBidder("Alice"),
		auction.SetActive(true),
	)
	assert.Equal(t, uint64(1), s.Version)
	assert.Equal(t, "Maignan", *s.CurrentLot)
}

func TestSession_CloneIsDeep(t *testing.T) {
	lot := "Maignan"
	bidder := "Alice"
	email := "alice@example.com"
	s := &auction.Session{
		ID:                 "a1",
		CurrentLot:         &lot,
		CurrentBidder:      &bidder,
		CurrentBidderEmail: &email,
		Participants:       []auction.Participant{{Name: "Alice"}},
		TakenLots:          []string{"Bastoni"},
		GroupConfig:        &auction.GroupConfig{GroupID: "g1"},
	}
	clone := s.Clone()
	*clone.CurrentLot = "Bastoni"
	*clone.CurrentBidder = "Bob"
	*clone.CurrentBidderEmail = "bob@example.com"
	clone.Participants[0].Name = "Carla"
	clone.TakenLots[0] = "Barella"
	clone.GroupConfig.GroupID = "g2"

	assert.Equal(t, "Maignan", *s.CurrentLot)
	assert.Equal(t, "Alice", *s.CurrentBidder)
	assert.Equal(t, "alice@example.com", *s.CurrentBidderEmail)
	assert.Equal(t, "Alice", s.Participants[0].Name)
	assert.Equal(t, "Bastoni", s.TakenLots[0])
	assert.Equal(t, "g1", s.GroupConfig.GroupID)
}
