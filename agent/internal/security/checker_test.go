package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckEndpoint_PlainHTTP(t *testing.T) {
	if _, ok := CheckEndpoint(context.Background(), "http://collector.local:8080", nil); ok {
		t.Error("plain http endpoint must not be checked")
	}
	if _, ok := CheckEndpoint(context.Background(), "::not a url", nil); ok {
		t.Error("unparseable endpoint must not be checked")
	}
}

func TestCheckEndpoint_Valid(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	cs, ok := CheckEndpoint(context.Background(), srv.URL, &tls.Config{RootCAs: pool})
	if !ok {
		t.Fatal("https endpoint was not checked")
	}
	// httptest certificates are valid for decades.
	if cs.Status != "valid" || cs.DaysLeft < 365 {
		t.Errorf("status = %q days_left = %v err = %v", cs.Status, cs.DaysLeft, cs.Err)
	}
	Log(cs)
}

func TestCheckEndpoint_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	cs, ok := CheckEndpoint(context.Background(), "https://"+addr, nil)
	if !ok || cs.Status != "unreachable" || cs.Err == nil {
		t.Errorf("got %+v, %v", cs, ok)
	}
	Log(cs)
}

func TestCheckEndpoint_UntrustedIsUnreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	cs, _ := CheckEndpoint(context.Background(), srv.URL, &tls.Config{RootCAs: x509.NewCertPool()})
	if cs.Status != "unreachable" {
		t.Errorf("status = %q, want unreachable for an untrusted certificate", cs.Status)
	}
}
