package ackauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/store"
	"github.com/monocle-dev/oncall/internal/types"
)

const DefaultTokenTTL = 24 * time.Hour

// Mode selects the token verifier.
type Mode string

const (
	ModeBound    Mode = "bound"
	ModePresence Mode = "presence"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBound, "":
		return ModeBound, nil
	case ModePresence:
		return ModePresence, nil
	}
	return "", fmt.Errorf("%w: unknown ack token mode %q", types.ErrInvalidInput, s)
}

// NewVerifier returns the verifier for mode.
func NewVerifier(mode Mode, tokens store.AckTokenStore, now func() time.Time) TokenVerifier {
	if mode == ModePresence {
		return PresenceVerifier{}
	}
	return NewBoundTokenVerifier(tokens, now)
}

// BoundTokenVerifier accepts a token only if it matches an unused, unexpired
// AckToken issued to the same member for the same incident. Consume marks it
// used; a token can be consumed once.
type BoundTokenVerifier struct {
	tokens store.AckTokenStore
	now    func() time.Time
}

func NewBoundTokenVerifier(tokens store.AckTokenStore, now func() time.Time) *BoundTokenVerifier {
	if now == nil {
		now = time.Now
	}
	return &BoundTokenVerifier{tokens: tokens, now: now}
}

func (v *BoundTokenVerifier) Verify(ctx context.Context, token string, memberID, incidentID uint) (Proof, error) {
	candidates, err := v.tokens.ListActiveAckTokens(ctx, incidentID, memberID, v.now())
	if err != nil {
		return Proof{}, fmt.Errorf("load ack tokens: %w", err)
	}

	for _, candidate := range candidates {
		err := bcrypt.CompareHashAndPassword([]byte(candidate.TokenHash), []byte(token))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			continue
		}
		if err != nil {
			return Proof{}, fmt.Errorf("compare ack token: %w", err)
		}
		return Proof{TokenID: candidate.ID, Channel: candidate.Channel}, nil
	}

	return Proof{}, fmt.Errorf("%w: acknowledgment token is not valid for this member and incident", types.ErrUnauthorized)
}

func (v *BoundTokenVerifier) Consume(ctx context.Context, proof Proof) error {
	if proof.TokenID == 0 {
		return fmt.Errorf("%w: no acknowledgment token to consume", types.ErrUnauthorized)
	}
	if err := v.tokens.MarkAckTokenUsed(ctx, proof.TokenID, v.now()); err != nil {
		if errors.Is(err, types.ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("consume ack token: %w", err)
	}
	return nil
}

// Issuer mints acknowledgment tokens for the paging subsystem.
type Issuer struct {
	tokens store.AckTokenStore
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

type IssuerOption func(*Issuer)

func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithCost sets the bcrypt cost.
func WithCost(cost int) IssuerOption {
	return func(i *Issuer) { i.cost = cost }
}

func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(tokens store.AckTokenStore, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		tokens: tokens,
		ttl:    DefaultTokenTTL,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue creates a token bound to the member and incident. The plaintext is
// returned once; only its hash is stored.
func (i *Issuer) Issue(ctx context.Context, incidentID, memberID uint, channel models.AckChannel) (string, models.AckToken, error) {
	if incidentID == 0 || memberID == 0 {
		return "", models.AckToken{}, fmt.Errorf("%w: incident and member are required", types.ErrInvalidInput)
	}
	if !channel.Valid() {
		return "", models.AckToken{}, fmt.Errorf("%w: unknown channel %q", types.ErrInvalidInput, channel)
	}

	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), i.cost)
	if err != nil {
		return "", models.AckToken{}, fmt.Errorf("hash ack token: %w", err)
	}

	token := models.AckToken{
		IncidentID: incidentID,
		UserID:     memberID,
		Channel:    channel,
		TokenHash:  string(hash),
		ExpiresAt:  i.now().Add(i.ttl),
	}
	if err := i.tokens.CreateAckToken(ctx, &token); err != nil {
		return "", models.AckToken{}, fmt.Errorf("store ack token: %w", err)
	}

	return secret, token, nil
}
