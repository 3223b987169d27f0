package sip

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/duophone/duophone/internal/config"
)

func testConfig(t *testing.T, registrarAddr string) *config.Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(registrarAddr)
	if err != nil {
		t.Fatalf("splitting registrar addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing registrar port: %v", err)
	}
	return &config.Config{
		RegistrarHost: host,
		RegistrarPort: port,
		AccountUser:   "alice",
		AccountPass:   "secret",
		LocalIP:       "127.0.0.1",
		LocalSIPPort:  0,
		RTPPortMin:    17000,
		RTPPortMax:    17010,
		LogLevel:      "error",
		LogFormat:     "text",
	}
}

func TestUserAgentInitIsIdempotent(t *testing.T) {
	registrar := fakeRegistrar(t)
	dest := registrar.LocalAddr().(*net.UDPAddr)
	cfg := testConfig(t, dest.String())

	ua, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ua.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	firstPort := ua.transport.LocalPort()
	if err := ua.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if ua.transport.LocalPort() != firstPort {
		t.Error("second Init() rebound the transport instead of being a no-op")
	}
}

func TestUserAgentRegisterSucceedsAfterChallenge(t *testing.T) {
	registrar := fakeRegistrar(t)
	dest := registrar.LocalAddr().(*net.UDPAddr)
	cfg := testConfig(t, dest.String())

	ua, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ua.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := ua.Register(dest.String(), cfg.AccountUser, cfg.AccountPass); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !ua.Registered() {
		t.Error("Registered() = false after a successful REGISTER")
	}

	// Init queues an initialized event ahead of the registration one.
	for {
		select {
		case ev := <-ua.Events():
			if ev.Kind != EventRegistrationState {
				continue
			}
			if !ev.Registered {
				t.Errorf("unexpected event: %+v", ev)
			}
			return
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for registration event")
		}
	}
}

func TestUserAgentUnregisterIsNoOpWhenNotRegistered(t *testing.T) {
	registrar := fakeRegistrar(t)
	dest := registrar.LocalAddr().(*net.UDPAddr)
	cfg := testConfig(t, dest.String())

	ua, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ua.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := ua.Unregister(dest.String(), cfg.AccountUser, cfg.AccountPass); err != nil {
		t.Fatalf("Unregister() on a never-registered UA should be a no-op, got: %v", err)
	}
}

func TestMakeCallRequiresRegistration(t *testing.T) {
	registrar := fakeRegistrar(t)
	dest := registrar.LocalAddr().(*net.UDPAddr)
	cfg := testConfig(t, dest.String())

	ua, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := ua.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err = ua.MakeCall("18005550100")
	if err == nil {
		t.Fatal("MakeCall() before Register, want ConfigMissing error")
	}
	sipErr, ok := err.(*Error)
	if !ok || sipErr.Kind != ConfigMissing {
		t.Errorf("error = %v, want *Error{Kind: ConfigMissing}", err)
	}
}
