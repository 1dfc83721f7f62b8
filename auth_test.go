package main

import (
	"strings"
	"testing"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	return NewAuth(openTestDB(t))
}

func TestRegisterAndLogin(t *testing.T) {
	auth := newTestAuth(t)

	id, token, err := auth.Register("mathfan", "secret99")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == 0 || token == "" {
		t.Fatal("expected a racer ID and a token")
	}

	loginID, loginToken, err := auth.Login("mathfan", "secret99", "1.2.3.4")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if loginID != id || loginToken == "" {
		t.Errorf("login returned id=%d token=%q", loginID, loginToken)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	auth := newTestAuth(t)
	auth.Register("mathfan", "secret99")

	if _, _, err := auth.Login("mathfan", "wrong", "1.2.3.4"); err == nil {
		t.Error("wrong password should fail")
	}
	if _, _, err := auth.Login("nobody", "secret99", "1.2.3.4"); err == nil {
		t.Error("unknown username should fail")
	}
}

func TestRegisterValidation(t *testing.T) {
	auth := newTestAuth(t)

	if _, _, err := auth.Register("x", "secret99"); err == nil {
		t.Error("single-character username should be rejected")
	}
	if _, _, err := auth.Register(strings.Repeat("a", maxUsernameLen+1), "secret99"); err == nil {
		t.Error("overlong username should be rejected")
	}
	if _, _, err := auth.Register("mathfan", "abc"); err == nil {
		t.Error("short password should be rejected")
	}
	if _, _, err := auth.Register("  mathfan  ", "secret99"); err != nil {
		t.Errorf("whitespace-padded username should be trimmed and accepted: %v", err)
	}
	if _, _, err := auth.Register("mathfan", "other123"); err == nil {
		t.Error("taken username should be rejected")
	}
}

func TestValidateToken(t *testing.T) {
	auth := newTestAuth(t)
	id, token, err := auth.Register("mathfan", "secret99")
	if err != nil {
		t.Fatal(err)
	}

	rid, username, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if rid != id || username != "mathfan" {
		t.Errorf("claims rid=%d usr=%q", rid, username)
	}

	if _, _, err := auth.ValidateToken("not.a.token"); err == nil {
		t.Error("garbage token should fail")
	}
	if _, _, err := auth.ValidateToken(token + "x"); err == nil {
		t.Error("tampered signature should fail")
	}
}

func TestTokenRejectedAcrossSecrets(t *testing.T) {
	a1 := NewAuth(openTestDB(t))
	a2 := NewAuth(openTestDB(t))

	_, token, err := a1.Register("mathfan", "secret99")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := a2.ValidateToken(token); err == nil {
		t.Error("a token signed elsewhere must not validate")
	}
}

func TestSecretPersistsAcrossRestart(t *testing.T) {
	db := openTestDB(t)
	a1 := NewAuth(db)
	_, token, err := a1.Register("mathfan", "secret99")
	if err != nil {
		t.Fatal(err)
	}

	// Same database, new Auth: the stored secret keeps old tokens valid
	a2 := NewAuth(db)
	if _, _, err := a2.ValidateToken(token); err != nil {
		t.Errorf("token should survive a restart: %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	auth := newTestAuth(t)
	auth.Register("mathfan", "secret99")

	for i := 0; i < maxLoginAttempts; i++ {
		auth.Login("mathfan", "wrong", "10.0.0.1")
	}
	if _, _, err := auth.Login("mathfan", "secret99", "10.0.0.1"); err == nil {
		t.Error("attempt past the window cap should be throttled")
	}
	// A different IP is unaffected
	if _, _, err := auth.Login("mathfan", "secret99", "10.0.0.2"); err != nil {
		t.Errorf("other IP should not be throttled: %v", err)
	}
}
