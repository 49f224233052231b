package confirmcode

import (
	"testing"
	"time"

	"yamdb/internal/model"
)

func testUser() *model.User {
	return &model.User{
		ID:       7,
		Username: "neo",
		Email:    "neo@x.io",
		Role:     model.RoleUser,
	}
}

func TestIssueValidate_SameBucket(t *testing.T) {
	issuer := New("test-secret", 15*time.Minute)
	user := testUser()
	now := time.Unix(1_700_000_000, 0)

	code := issuer.Issue(user, now)
	if code == "" {
		t.Fatalf("expected non-empty code")
	}
	if !issuer.Validate(user, code, now) {
		t.Fatalf("expected code to validate in the issuing bucket")
	}
}

func TestValidate_PreviousBucketTolerance(t *testing.T) {
	issuer := New("test-secret", 15*time.Minute)
	user := testUser()
	now := time.Unix(1_700_000_000, 0)

	code := issuer.Issue(user, now)
	if !issuer.Validate(user, code, now.Add(15*time.Minute)) {
		t.Fatalf("expected code to survive one bucket of skew")
	}
	if issuer.Validate(user, code, now.Add(31*time.Minute)) {
		t.Fatalf("expected code to expire after the skew window")
	}
}

func TestValidate_OtherUserRejected(t *testing.T) {
	issuer := New("test-secret", 15*time.Minute)
	user := testUser()
	now := time.Unix(1_700_000_000, 0)

	code := issuer.Issue(user, now)

	other := testUser()
	other.ID = 8
	if issuer.Validate(other, code, now) {
		t.Fatalf("expected code for another user to be rejected")
	}
}

func TestValidate_StateChangeInvalidates(t *testing.T) {
	issuer := New("test-secret", 15*time.Minute)
	user := testUser()
	now := time.Unix(1_700_000_000, 0)

	code := issuer.Issue(user, now)

	login := now.Add(time.Minute)
	user.LastLogin = &login
	if issuer.Validate(user, code, now) {
		t.Fatalf("expected last-login change to invalidate the code")
	}

	user.LastLogin = nil
	user.Role = model.RoleModerator
	if issuer.Validate(user, code, now) {
		t.Fatalf("expected role change to invalidate the code")
	}
}

func TestValidate_EmptyCode(t *testing.T) {
	issuer := New("test-secret", 0)
	if issuer.Validate(testUser(), "", time.Now()) {
		t.Fatalf("expected empty code to be rejected")
	}
}

func TestIssue_DifferentSecretsDiffer(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := New("secret-a", 15*time.Minute).Issue(testUser(), now)
	b := New("secret-b", 15*time.Minute).Issue(testUser(), now)
	if a == b {
		t.Fatalf("expected codes under different secrets to differ")
	}
}
