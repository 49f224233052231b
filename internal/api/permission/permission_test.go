package permission

import (
	"net/http"
	"testing"

	"yamdb/internal/model"
)

var (
	anon      = Anonymous
	plainUser = Actor{ID: 1, Role: model.RoleUser, Authenticated: true}
	moderator = Actor{ID: 2, Role: model.RoleModerator, Authenticated: true}
	admin     = Actor{ID: 3, Role: model.RoleAdmin, Authenticated: true}
	superuser = Actor{ID: 4, Role: model.RoleUser, Authenticated: true, Superuser: true}
	staff     = Actor{ID: 5, Role: model.RoleUser, Authenticated: true, Staff: true}
)

func TestActor_DerivedFlags(t *testing.T) {
	if !admin.IsAdmin() {
		t.Fatalf("role admin must be admin")
	}
	if !superuser.IsAdmin() {
		t.Fatalf("superuser flag must grant admin")
	}
	if !moderator.IsModerator() {
		t.Fatalf("role moderator must be moderator")
	}
	if !staff.IsModerator() {
		t.Fatalf("staff flag must grant moderator")
	}
	if plainUser.IsAdmin() || plainUser.IsModerator() {
		t.Fatalf("plain user must not be elevated")
	}
	if anon.IsAdmin() || anon.IsModerator() {
		t.Fatalf("anonymous actor must not be elevated")
	}
}

func TestAdminOrReadOnly(t *testing.T) {
	p := AdminOrReadOnly{}

	if !p.CheckCollection(anon, http.MethodGet) {
		t.Fatalf("anonymous read must pass")
	}
	if p.CheckCollection(plainUser, http.MethodPost) {
		t.Fatalf("user mutation must be denied")
	}
	if p.CheckCollection(moderator, http.MethodDelete) {
		t.Fatalf("moderator mutation must be denied")
	}
	if !p.CheckCollection(admin, http.MethodPost) {
		t.Fatalf("admin mutation must pass")
	}
	if !p.CheckCollection(superuser, http.MethodPatch) {
		t.Fatalf("superuser mutation must pass")
	}
}

func TestAdminOnly(t *testing.T) {
	p := AdminOnly{}

	// 未认证放行：该谓词用于保持自助注册路径开放，
	// 强制认证由路由中间件负责。
	if !p.CheckCollection(anon, http.MethodPost) {
		t.Fatalf("anonymous must pass the predicate itself")
	}
	if p.CheckCollection(plainUser, http.MethodGet) {
		t.Fatalf("authenticated non-admin must be denied")
	}
	if p.CheckCollection(moderator, http.MethodGet) {
		t.Fatalf("moderator must be denied")
	}
	if !p.CheckCollection(admin, http.MethodDelete) {
		t.Fatalf("admin must pass")
	}
}

func TestOwnerOrModerated_ObjectStage(t *testing.T) {
	p := OwnerOrModerated{}
	const ownerID = 1

	if !p.CheckObject(plainUser, http.MethodDelete, ownerID) {
		t.Fatalf("owner must be able to mutate own resource")
	}
	other := Actor{ID: 9, Role: model.RoleUser, Authenticated: true}
	if p.CheckObject(other, http.MethodDelete, ownerID) {
		t.Fatalf("non-owner user must be denied")
	}
	if !p.CheckObject(other, http.MethodGet, ownerID) {
		t.Fatalf("read must pass for anyone")
	}
	if !p.CheckObject(moderator, http.MethodDelete, ownerID) {
		t.Fatalf("moderator must be able to moderate")
	}
	if !p.CheckObject(admin, http.MethodPatch, ownerID) {
		t.Fatalf("admin must be able to moderate")
	}
}

func TestAuthenticatedOrReadOnlyWithModeration(t *testing.T) {
	p := AuthenticatedOrReadOnlyWithModeration{}
	const ownerID = 1

	if !p.CheckCollection(anon, http.MethodGet) {
		t.Fatalf("anonymous read must pass the collection stage")
	}
	if p.CheckCollection(anon, http.MethodPost) {
		t.Fatalf("anonymous mutation must fail the collection stage")
	}
	if !p.CheckCollection(plainUser, http.MethodPost) {
		t.Fatalf("authenticated mutation must pass the collection stage")
	}

	if !p.CheckObject(anon, http.MethodGet, ownerID) {
		t.Fatalf("anonymous read must pass the object stage")
	}
	if !p.CheckObject(plainUser, http.MethodPatch, ownerID) {
		t.Fatalf("owner must pass the object stage")
	}
	other := Actor{ID: 9, Role: model.RoleUser, Authenticated: true}
	if p.CheckObject(other, http.MethodPatch, ownerID) {
		t.Fatalf("non-owner user must fail the object stage")
	}
	if !p.CheckObject(staff, http.MethodDelete, ownerID) {
		t.Fatalf("staff flag must pass the object stage")
	}
}

func TestFromUser(t *testing.T) {
	u := &model.User{ID: 11, Role: model.RoleModerator, Staff: true}
	actor := FromUser(u)
	if !actor.Authenticated {
		t.Fatalf("actor from user must be authenticated")
	}
	if actor.ID != 11 || !actor.IsModerator() {
		t.Fatalf("actor must carry user identity and role")
	}
}
