package auth

import (
	"strings"
	"testing"

	"github.com/ducktracker/server/internal/tokenset"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthenticatePlaintext(t *testing.T) {
	a := NewAuthenticator(Credentials{"alice": "s3cret"})
	if !a.Authenticate("alice", "s3cret") {
		t.Fatal("expected correct plaintext password to authenticate")
	}
	if a.Authenticate("alice", "wrong") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestAuthenticateUnknownUserFails(t *testing.T) {
	a := NewAuthenticator(Credentials{"alice": "s3cret"})
	if a.Authenticate("bob", "anything") {
		t.Fatal("expected unknown user to fail authentication")
	}
}

func TestAuthenticateBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	a := NewAuthenticator(Credentials{"alice": string(hash)})
	if !a.Authenticate("alice", "hunter2") {
		t.Fatal("expected correct bcrypt password to authenticate")
	}
	if a.Authenticate("alice", "wrong") {
		t.Fatal("expected wrong bcrypt password to fail")
	}
}

func TestLoadPasswordFileParsesPlainAndBcrypt(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	content := "alice:plainpass\nbob:" + string(hash) + "\n\n"
	creds, err := parsePasswordFile(strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds["alice"] != "plainpass" {
		t.Errorf("alice password = %q, want plainpass", creds["alice"])
	}
	if !strings.HasPrefix(creds["bob"], "$") {
		t.Errorf("bob password = %q, want bcrypt hash", creds["bob"])
	}
}

func TestLoadPasswordFileRejectsMissingColon(t *testing.T) {
	if _, err := parsePasswordFile(strings.NewReader("aliceplainpass\n")); err == nil {
		t.Fatal("expected error for line missing ':' separator")
	}
}

func TestCreateTokenOnSuccess(t *testing.T) {
	a := NewAuthenticator(Credentials{"alice": "s3cret"})
	tokens := tokenset.New(10)
	token, ok := a.CreateToken(tokens, "alice", "s3cret")
	if !ok {
		t.Fatal("expected CreateToken to succeed")
	}
	if len(token) != TokenLength {
		t.Fatalf("token length = %d, want %d", len(token), TokenLength)
	}
	if !tokens.Contains(token) {
		t.Fatal("expected minted token to be present in the bounded set")
	}
}

func TestCreateTokenOnFailureReturnsEmptyNotError(t *testing.T) {
	a := NewAuthenticator(Credentials{"alice": "s3cret"})
	tokens := tokenset.New(10)
	token, ok := a.CreateToken(tokens, "alice", "wrong")
	if ok {
		t.Fatal("expected CreateToken to fail")
	}
	if token != "" {
		t.Fatalf("got token=%q, want empty string on failure", token)
	}
	if tokens.Len() != 0 {
		t.Fatal("expected no token to be inserted on failed authentication")
	}
}
