package security

import (
	"context"
	"crypto/tls"
	"log/slog"
	"math"
	"net"
	"net/url"
	"time"
)

// ExpiringWithin is the remaining lifetime below which a certificate is
// reported as expiring.
const ExpiringWithin = 30 * 24 * time.Hour

const dialTimeout = 10 * time.Second

// CertStatus describes the endpoint's leaf certificate.
type CertStatus struct {
	Endpoint string
	// Status is valid | expiring | expired | unreachable.
	Status   string
	Issuer   string
	NotAfter time.Time
	DaysLeft float64
	Err      error
}

// CheckEndpoint dials endpoint and reports on its leaf certificate. The
// second result is false for plain-HTTP or unparseable endpoints, which
// have no certificate to inspect.
func CheckEndpoint(ctx context.Context, endpoint string, cfg *tls.Config) (CertStatus, bool) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" {
		return CertStatus{}, false
	}
	cs := CertStatus{Endpoint: endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if cfg == nil {
		cfg = &tls.Config{}
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
	conn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status, cs.Err = "unreachable", err
		return cs, true
	}
	defer conn.Close()

	peers := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(peers) == 0 {
		cs.Status = "unreachable"
		return cs, true
	}
	leaf := peers[0]
	left := time.Until(leaf.NotAfter)

	cs.Issuer = leaf.Issuer.CommonName
	cs.NotAfter = leaf.NotAfter
	cs.DaysLeft = math.Floor(left.Hours() / 24)
	switch {
	case left <= 0:
		cs.Status = "expired"
	case left <= ExpiringWithin:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}
	return cs, true
}

// Log writes cs at a level matching its status.
func Log(cs CertStatus) {
	attrs := []any{"endpoint", cs.Endpoint, "status", cs.Status}
	switch cs.Status {
	case "valid":
		slog.Info("security: endpoint certificate ok", append(attrs, "days_left", cs.DaysLeft)...)
	case "expiring":
		slog.Warn("security: endpoint certificate expiring soon",
			append(attrs, "days_left", cs.DaysLeft, "not_after", cs.NotAfter, "issuer", cs.Issuer)...)
	case "expired":
		slog.Error("security: endpoint certificate expired",
			append(attrs, "not_after", cs.NotAfter, "issuer", cs.Issuer)...)
	default:
		slog.Warn("security: endpoint unreachable for certificate check", append(attrs, "err", cs.Err)...)
	}
}
