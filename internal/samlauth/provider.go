// Package samlauth delegates sign-on to an external SAML identity provider
// and exposes the authenticated admin identity to the HTTP layer.
package samlauth

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crewjam/saml/samlsp"

	"github.com/polylate/polylate/internal/apperrors"
	"github.com/polylate/polylate/internal/config"
)

// Provider wraps the service-provider middleware. All protocol handling
// (AuthnRequest, ACS, metadata) stays inside crewjam/saml.
type Provider struct {
	middleware *samlsp.Middleware
}

// New loads the SP keypair, fetches the IDP metadata and builds the
// middleware. The root URL decides the ACS and metadata endpoints.
func New(ctx context.Context, cfg *config.Config) (*Provider, error) {
	if cfg == nil || !cfg.SAMLEnabled() {
		return nil, fmt.Errorf("saml is not configured")
	}

	keyPair, err := tls.LoadX509KeyPair(cfg.SAMLCertFile, cfg.SAMLKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load saml keypair: %w", err)
	}
	keyPair.Leaf, err = x509.ParseCertificate(keyPair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse saml certificate: %w", err)
	}

	idpMetadataURL, err := url.Parse(cfg.SAMLIDPMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("parse idp metadata url: %w", err)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	idpMetadata, err := samlsp.FetchMetadata(fetchCtx, http.DefaultClient, *idpMetadataURL)
	if err != nil {
		return nil, fmt.Errorf("fetch idp metadata: %w", err)
	}

	rootURL, err := url.Parse(cfg.RootURL)
	if err != nil {
		return nil, fmt.Errorf("parse root url: %w", err)
	}

	middleware, err := samlsp.New(samlsp.Options{
		URL:         *rootURL,
		Key:         keyPair.PrivateKey.(*rsa.PrivateKey),
		Certificate: keyPair.Leaf,
		IDPMetadata: idpMetadata,
		EntityID:    cfg.SAMLEntityID,
	})
	if err != nil {
		return nil, fmt.Errorf("build saml middleware: %w", err)
	}

	return &Provider{middleware: middleware}, nil
}

// Middleware returns the crewjam handler wrapping protected routes.
func (p *Provider) Middleware() *samlsp.Middleware {
	return p.middleware
}

// ServeACS handles the assertion consumer POST from the identity provider.
func (p *Provider) ServeACS(w http.ResponseWriter, r *http.Request) {
	p.middleware.ServeHTTP(w, r)
}

// ServeMetadata serves the SP metadata document.
func (p *Provider) ServeMetadata(w http.ResponseWriter, r *http.Request) {
	p.middleware.ServeMetadata(w, r)
}

// AdminID extracts the authenticated admin identity from the request
// session. The subject NameID wins; an explicit "admin_id" attribute
// overrides it when the IDP sends one.
func AdminID(r *http.Request) (string, error) {
	session := samlsp.SessionFromContext(r.Context())
	if session == nil {
		return "", apperrors.New(apperrors.KindUpstreamAuthFailure, "no saml session on request")
	}

	attrs, ok := session.(samlsp.SessionWithAttributes)
	if !ok {
		return "", apperrors.New(apperrors.KindUpstreamAuthFailure, "saml session carries no attributes")
	}

	if id := strings.TrimSpace(attrs.GetAttributes().Get("admin_id")); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(samlsp.AttributeFromContext(r.Context(), "urn:oasis:names:tc:SAML:attribute:subject-id")); id != "" {
		return id, nil
	}

	jwtSession, ok := session.(samlsp.JWTSessionClaims)
	if ok && strings.TrimSpace(jwtSession.Subject) != "" {
		return jwtSession.Subject, nil
	}

	return "", apperrors.New(apperrors.KindUpstreamAuthFailure, "saml session has no usable subject")
}
