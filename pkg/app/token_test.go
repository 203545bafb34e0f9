package app

import (
	"testing"
	"time"
)

func TestTokenManager_GenerateAndParse(t *testing.T) {
	cfg := TokenConfig{
		SecretKey: "user-secret",
		Expiry:    time.Hour,
		Issuer:    "test-issuer",
	}
	tm := NewTokenManager(cfg)

	// 1. 生成并解析
	token, err := tm.Generate("alice")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	identity, err := tm.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if identity.Owner != "alice" {
		t.Errorf("Expected owner alice, got %s", identity.Owner)
	}

	// 过期时间允许 1 秒误差
	expectedExp := time.Now().Add(cfg.Expiry)
	if d := identity.ExpiresAt.Unix() - expectedExp.Unix(); d < -1 || d > 1 {
		t.Errorf("Expected ExpiresAt around %v, got %v", expectedExp, identity.ExpiresAt)
	}

	// 2. 错误的密钥
	wrong := cfg
	wrong.SecretKey = "wrong-secret"
	if _, err := NewTokenManager(wrong).Parse(token); err == nil {
		t.Error("Expected error when parsing with wrong key, got nil")
	}

	// 3. 错误的签发者
	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"
	if _, err := NewTokenManager(otherIssuer).Parse(token); err == nil {
		t.Error("Expected error when issuer differs, got nil")
	}
}

func TestTokenManager_Expired(t *testing.T) {
	tm := NewTokenManager(TokenConfig{SecretKey: "k", Expiry: -time.Minute})
	token, err := tm.Generate("bob")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := tm.Parse(token); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}

func TestTokenManager_RejectsEmptyOwner(t *testing.T) {
	if _, err := NewTokenManager(TokenConfig{SecretKey: "k"}).Generate("  "); err == nil {
		t.Error("Expected empty owner to be rejected")
	}
}

func TestTokenManager_Portable(t *testing.T) {
	a := NewTokenManager(TokenConfig{SecretKey: "k", Portable: true})
	token, err := a.Generate("carol")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// 非 Portable 的管理器混入了机器 ID，不能校验 Portable 令牌
	if _, err := NewTokenManager(TokenConfig{SecretKey: "k"}).Parse(token); err == nil {
		t.Error("Expected machine-bound manager to reject portable token")
	}
}

func TestTokenOwner(t *testing.T) {
	token, err := NewTokenManager(TokenConfig{SecretKey: "k", Expiry: time.Hour}).Generate("bob")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := TokenOwner(token); got != "bob" {
		t.Errorf("Expected owner bob, got %q", got)
	}
	// 无需密钥即可读取，但无效令牌返回空
	for _, bad := range []string{"", "  ", "not-a-token"} {
		if got := TokenOwner(bad); got != "" {
			t.Errorf("TokenOwner(%q) = %q, want empty", bad, got)
		}
	}
}
