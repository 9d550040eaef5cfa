// Package ackauth decides who is acknowledging an incident. A caller proves
// identity either with a web session or with an out-of-band acknowledgment
// token sent over SMS, voice or chat.
package ackauth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/monocle-dev/oncall/internal/models"
	"github.com/monocle-dev/oncall/internal/types"
)

// Method names the proof that was accepted.
type Method string

const (
	MethodSession Method = "session"
	MethodToken   Method = "token"
)

// Identity is a verified session caller.
type Identity struct {
	MemberID uint
	Email    string
}

// Request is one acknowledgment attempt.
type Request struct {
	Session    *Identity
	Token      string
	MemberID   uint
	IncidentID uint
	Channel    models.AckChannel
}

// Grant is the member an acknowledgment is attributed to.
type Grant struct {
	MemberID uint
	Channel  models.AckChannel
	Method   Method

	proof Proof
}

// Proof is a verified token that has not been spent yet.
type Proof struct {
	// TokenID is 0 for verifiers that keep no token state.
	TokenID uint
	// Channel is the channel the token was issued for, or "".
	Channel models.AckChannel
}

// TokenVerifier checks token proofs. Verify has no side effects; Consume
// spends the proof and fails with types.ErrUnauthorized when another request
// spent it first.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, memberID, incidentID uint) (Proof, error)
	Consume(ctx context.Context, proof Proof) error
}

type Authorizer struct {
	verifier TokenVerifier
	log      *zap.Logger
}

func NewAuthorizer(verifier TokenVerifier, log *zap.Logger) *Authorizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authorizer{verifier: verifier, log: log}
}

// Authorize resolves the request to a member. A session wins over a token.
// Without either proof it fails with types.ErrUnauthorized.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (Grant, error) {
	if req.Channel != "" && !req.Channel.Valid() {
		return Grant{}, fmt.Errorf("%w: unknown channel %q", types.ErrInvalidInput, req.Channel)
	}

	if req.Session != nil && req.Session.MemberID != 0 {
		return Grant{
			MemberID: req.Session.MemberID,
			Channel:  channelOr(req.Channel, models.ChannelWeb),
			Method:   MethodSession,
		}, nil
	}

	if req.Token == "" || req.MemberID == 0 {
		return Grant{}, fmt.Errorf("%w: a session or an acknowledgment token with a member id is required", types.ErrUnauthorized)
	}

	proof, err := a.verifier.Verify(ctx, req.Token, req.MemberID, req.IncidentID)
	if err != nil {
		a.log.Warn("acknowledgment token rejected",
			zap.Uint("incident_id", req.IncidentID),
			zap.Uint("member_id", req.MemberID),
			zap.Error(err))
		return Grant{}, err
	}

	if proof.Channel != "" && req.Channel != "" && req.Channel != proof.Channel {
		return Grant{}, fmt.Errorf("%w: token was issued for %s, not %s", types.ErrUnauthorized, proof.Channel, req.Channel)
	}

	return Grant{
		MemberID: req.MemberID,
		Channel:  channelOr(proof.Channel, channelOr(req.Channel, models.ChannelWeb)),
		Method:   MethodToken,
		proof:    proof,
	}, nil
}

// Consume spends the token behind a token grant. Session grants need nothing.
// Call it once every other check on the acknowledgment has passed.
func (a *Authorizer) Consume(ctx context.Context, grant Grant) error {
	if grant.Method != MethodToken {
		return nil
	}

	if err := a.verifier.Consume(ctx, grant.proof); err != nil {
		a.log.Warn("acknowledgment token already spent",
			zap.Uint("member_id", grant.MemberID),
			zap.Uint("token_id", grant.proof.TokenID),
			zap.Error(err))
		return err
	}
	return nil
}

func channelOr(c, fallback models.AckChannel) models.AckChannel {
	if c == "" {
		return fallback
	}
	return c
}

// PresenceVerifier accepts any non-empty token. The claimed member is
// trusted as is; use it only where another layer already vetted the caller.
type PresenceVerifier struct{}

func (PresenceVerifier) Verify(_ context.Context, token string, memberID, _ uint) (Proof, error) {
	if token == "" || memberID == 0 {
		return Proof{}, types.ErrUnauthorized
	}
	return Proof{}, nil
}

func (PresenceVerifier) Consume(context.Context, Proof) error { return nil }
