package auth

import (
	"context"
	"errors"
	"slices"

	"github.com/jrsteele09/go-agent-auth/clients"
	"github.com/jrsteele09/go-agent-auth/internal/utils"
	"github.com/jrsteele09/go-agent-auth/oauth2"
	"github.com/jrsteele09/go-agent-auth/oauthmodel"
	"github.com/rs/zerolog/log"
)

var (
	supportedGrantTypes    = []string{string(oauthmodel.AuthorizationCodeGrant), string(oauthmodel.RefreshTokenGrant)}
	supportedResponseTypes = []string{string(oauthmodel.CodeResponseType)}
)

// Register performs RFC 7591 dynamic client registration. Errors are
// *oauthmodel.Error.
func (as *AuthorizationService) Register(ctx context.Context, req oauth2.RegistrationRequest) (*oauth2.RegistrationResponse, error) {
	for _, gt := range req.GrantTypes {
		if !slices.Contains(supportedGrantTypes, gt) {
			return nil, oauthmodel.InvalidClientMetadata("grant type %q is not supported", gt)
		}
	}
	for _, rt := range req.ResponseTypes {
		if !slices.Contains(supportedResponseTypes, rt) {
			return nil, oauthmodel.InvalidClientMetadata("response type %q is not supported", rt)
		}
	}

	client, secret, err := as.repos.Clients.Register(ctx, clients.Registration{
		RedirectURIs:            req.RedirectURIs,
		Name:                    req.ClientName,
		TokenEndpointAuthMethod: clients.AuthMethod(req.TokenEndpointAuthMethod),
	})
	switch {
	case errors.Is(err, clients.ErrNoRedirectURIs), errors.Is(err, clients.ErrInvalidRedirectURI):
		return nil, oauthmodel.InvalidRedirectURI("%s", err.Error())
	case errors.Is(err, clients.ErrUnsupportedAuthType):
		return nil, oauthmodel.InvalidClientMetadata("token_endpoint_auth_method %q is not supported", req.TokenEndpointAuthMethod)
	case err != nil:
		log.Err(err).Msg("[AuthorizationService.Register] client registration failed")
		return nil, oauthmodel.ServerError("unable to register client")
	}

	log.Info().Str("clientId", client.ID).Str("clientName", client.Name).Msg("client registered")

	resp := &oauth2.RegistrationResponse{
		ClientID:                client.ID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        client.CreatedAt.Unix(),
		RedirectURIs:            client.RedirectURIs,
		ClientName:              client.Name,
		TokenEndpointAuthMethod: string(client.TokenEndpointAuthMethod),
		GrantTypes:              supportedGrantTypes,
		ResponseTypes:           supportedResponseTypes,
	}
	if secret != "" {
		resp.ClientSecretExpiresAt = utils.Ptr(int64(0)) // secrets never expire
	}
	return resp, nil
}
