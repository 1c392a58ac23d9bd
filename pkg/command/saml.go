package command

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"time"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/authz"
	"github.com/nordlys-id/nordlys/pkg/domain"
	"github.com/nordlys-id/nordlys/pkg/eventstore"
	"github.com/nordlys-id/nordlys/pkg/repository"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

type samlRequestWriteModel struct {
	eventstore.WriteModel

	State     domain.SAMLRequestState
	Issuer    string
	ACSURL    string
	SessionID string
}

func newSAMLRequestWriteModel(instanceID, ownerID, requestID string) *samlRequestWriteModel {
	return &samlRequestWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   requestID,
			ResourceOwner: ownerID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *samlRequestWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.SAMLRequestAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *samlRequestWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.SAMLRequestAddedType:
			var payload repository.SAMLRequestAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.SAMLRequestStateAdded
			wm.Issuer = payload.Issuer
			wm.ACSURL = payload.ACSURL

		case repository.SAMLRequestSessionLinkedType:
			var payload repository.SAMLRequestSessionLinkedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.SessionID = payload.SessionID

		case repository.SAMLRequestSucceededType:
			wm.State = domain.SAMLRequestStateSucceeded
		case repository.SAMLRequestFailedType:
			wm.State = domain.SAMLRequestStateFailed
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *samlRequestWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.SAMLRequestAggregate)
}

// AddSAMLRequest is the input for persisting an inbound SAML authn request.
type AddSAMLRequest struct {
	OrgID       string
	LoginClient string
	Issuer      string
	ACSURL      string
	RelayState  string
	RequestID   string
	Binding     domain.SAMLBinding
}

// AddSAMLRequest records a request in state added.
func (c *Commands) AddSAMLRequest(ctx context.Context, request *AddSAMLRequest) (string, *domain.ObjectDetails, error) {
	if err := validators.Required(request.Issuer, "issuer", "SAML-001"); err != nil {
		return "", nil, err
	}
	if err := validators.URL(request.ACSURL, "SAML-002"); err != nil {
		return "", nil, err
	}
	if err := validators.Required(request.RequestID, "requestId", "SAML-003"); err != nil {
		return "", nil, err
	}
	if request.Binding != domain.SAMLBindingPost && request.Binding != domain.SAMLBindingRedirect {
		return "", nil, apperr.ThrowInvalidArgument(nil, "SAML-004", "unsupported binding")
	}
	id := c.nextID()
	model := newSAMLRequestWriteModel(authz.GetInstance(ctx), request.OrgID, id)
	err := c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.SAMLRequestAddedType, authz.GetCtxData(ctx).UserID,
			repository.SAMLRequestAddedPayload{
				LoginClient: request.LoginClient,
				Issuer:      request.Issuer,
				ACSURL:      request.ACSURL,
				RelayState:  request.RelayState,
				RequestID:   request.RequestID,
				Binding:     request.Binding,
			}))
	if err != nil {
		return "", nil, err
	}
	return id, eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

// LinkSessionToSAMLRequest attaches the authenticated session. Only a
// request still in state added can be linked.
func (c *Commands) LinkSessionToSAMLRequest(ctx context.Context, requestID, sessionID string) (*domain.ObjectDetails, error) {
	if err := validators.Required(sessionID, "sessionId", "SAML-010"); err != nil {
		return nil, err
	}
	request, err := c.existingSAMLRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.State != domain.SAMLRequestStateAdded {
		return nil, apperr.ThrowPreconditionFailed(nil, "SAML-011", "request already completed")
	}
	err = c.pushAppendAndReduce(ctx, request,
		eventstore.NewCommand(request.aggregate(), repository.SAMLRequestSessionLinkedType, authz.GetCtxData(ctx).UserID,
			repository.SAMLRequestSessionLinkedPayload{SessionID: sessionID}))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&request.WriteModel), nil
}

// SucceedSAMLRequest marks the request succeeded. Repeating the same
// terminal transition is a no-op; crossing from failed is refused.
func (c *Commands) SucceedSAMLRequest(ctx context.Context, requestID string) (*domain.ObjectDetails, error) {
	return c.finishSAMLRequest(ctx, requestID, domain.SAMLRequestStateSucceeded,
		repository.SAMLRequestSucceededType, nil)
}

// FailSAMLRequest marks the request failed with a reason.
func (c *Commands) FailSAMLRequest(ctx context.Context, requestID, reason string) (*domain.ObjectDetails, error) {
	return c.finishSAMLRequest(ctx, requestID, domain.SAMLRequestStateFailed,
		repository.SAMLRequestFailedType, repository.SAMLRequestFailedPayload{Reason: reason})
}

func (c *Commands) finishSAMLRequest(ctx context.Context, requestID string, target domain.SAMLRequestState, eventType eventstore.EventType, payload any) (*domain.ObjectDetails, error) {
	request, err := c.existingSAMLRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.State == target {
		return eventstore.WriteModelToObjectDetails(&request.WriteModel), nil
	}
	if request.State != domain.SAMLRequestStateAdded {
		return nil, apperr.ThrowPreconditionFailed(nil, "SAML-020", "request already completed")
	}
	err = c.pushAppendAndReduce(ctx, request,
		eventstore.NewCommand(request.aggregate(), eventType, authz.GetCtxData(ctx).UserID, payload))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&request.WriteModel), nil
}

func (c *Commands) existingSAMLRequest(ctx context.Context, requestID string) (*samlRequestWriteModel, error) {
	request := newSAMLRequestWriteModel(authz.GetInstance(ctx), "", requestID)
	if err := request.load(ctx, c.es); err != nil {
		return nil, err
	}
	if request.State == domain.SAMLRequestStateUnspecified {
		return nil, apperr.ThrowNotFound(nil, "SAML-000", "request does not exist")
	}
	return request, nil
}

type samlSessionWriteModel struct {
	eventstore.WriteModel

	State     domain.SAMLSessionState
	UserID    string
	ExpiresAt time.Time
}

func newSAMLSessionWriteModel(instanceID, ownerID, sessionID string) *samlSessionWriteModel {
	return &samlSessionWriteModel{
		WriteModel: eventstore.WriteModel{
			AggregateID:   sessionID,
			ResourceOwner: ownerID,
			InstanceID:    instanceID,
		},
	}
}

func (wm *samlSessionWriteModel) load(ctx context.Context, es *eventstore.Eventstore) error {
	events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder(wm.InstanceID).
		WithAggregateTypes(repository.SAMLSessionAggregate).
		WithAggregateIDs(wm.AggregateID))
	if err != nil {
		return err
	}
	wm.AppendEvents(events...)
	return wm.Reduce()
}

func (wm *samlSessionWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case repository.SAMLSessionAddedType:
			var payload repository.SAMLSessionAddedPayload
			if err := event.UnmarshalPayload(&payload); err != nil {
				return err
			}
			wm.State = domain.SAMLSessionStateActive
			wm.UserID = payload.UserID
			wm.ExpiresAt = payload.ExpiresAt

		case repository.SAMLSessionTerminatedType:
			wm.State = domain.SAMLSessionStateTerminated
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *samlSessionWriteModel) aggregate() *eventstore.Aggregate {
	return eventstore.AggregateFromWriteModel(&wm.WriteModel, repository.SAMLSessionAggregate)
}

// AddSAMLSession creates a provider session from a linked request. The
// session carries an absolute expiry, by default five minutes out.
func (c *Commands) AddSAMLSession(ctx context.Context, requestID, userID, entityID string) (string, *domain.ObjectDetails, error) {
	if err := validators.Required(userID, "userId", "SAML-030"); err != nil {
		return "", nil, err
	}
	request, err := c.existingSAMLRequest(ctx, requestID)
	if err != nil {
		return "", nil, err
	}
	if request.SessionID == "" {
		return "", nil, apperr.ThrowPreconditionFailed(nil, "SAML-031", "request has no linked session")
	}
	sessionID := c.nextID()
	model := newSAMLSessionWriteModel(authz.GetInstance(ctx), request.ResourceOwner, sessionID)
	err = c.pushAppendAndReduce(ctx, model,
		eventstore.NewCommand(model.aggregate(), repository.SAMLSessionAddedType, authz.GetCtxData(ctx).UserID,
			repository.SAMLSessionAddedPayload{
				SAMLRequestID: requestID,
				UserID:        userID,
				EntityID:      entityID,
				ExpiresAt:     c.now().Add(c.sessionLifetime),
			}))
	if err != nil {
		return "", nil, err
	}
	return sessionID, eventstore.WriteModelToObjectDetails(&model.WriteModel), nil
}

// TerminateSAMLSession ends a session before its expiry. Terminating an
// expired session is allowed and records the termination.
func (c *Commands) TerminateSAMLSession(ctx context.Context, sessionID string) (*domain.ObjectDetails, error) {
	session := newSAMLSessionWriteModel(authz.GetInstance(ctx), "", sessionID)
	if err := session.load(ctx, c.es); err != nil {
		return nil, err
	}
	if session.State == domain.SAMLSessionStateUnspecified {
		return nil, apperr.ThrowNotFound(nil, "SAML-040", "session does not exist")
	}
	if session.State == domain.SAMLSessionStateTerminated {
		return eventstore.WriteModelToObjectDetails(&session.WriteModel), nil
	}
	err := c.pushAppendAndReduce(ctx, session,
		eventstore.NewCommand(session.aggregate(), repository.SAMLSessionTerminatedType, authz.GetCtxData(ctx).UserID, nil))
	if err != nil {
		return nil, err
	}
	return eventstore.WriteModelToObjectDetails(&session.WriteModel), nil
}

// VerifySAMLResponseSignature checks an RSA-SHA256 signature over the raw
// response bytes against the provider certificate. Verification fails
// closed: a provider without a certificate cannot pass.
func VerifySAMLResponseSignature(certPEM, payload, signature []byte) error {
	if len(certPEM) == 0 {
		return apperr.ThrowUnauthenticated(nil, "SAML-050", "no signing certificate configured")
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return apperr.ThrowUnauthenticated(nil, "SAML-051", "malformed signing certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return apperr.ThrowUnauthenticated(err, "SAML-052", "parse signing certificate")
	}
	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return apperr.ThrowUnauthenticated(nil, "SAML-053", "unsupported signing key type")
	}
	digest := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], signature); err != nil {
		return apperr.ThrowUnauthenticated(err, "SAML-054", "response signature invalid")
	}
	return nil
}
