package rbac

import (
	"testing"

	"github.com/xiaocunxcx/ServerSentinel/internal/domain/model"
)

func TestPolicyRole(t *testing.T) {
	p := NewPolicy([]string{"sentinel-admins"}, []string{"admin"})

	tests := []struct {
		name   string
		claims Claims
		want   string
	}{
		{name: "нет групп и ролей", claims: Claims{}, want: RoleUser},
		{name: "посторонняя группа", claims: Claims{Groups: []string{"devs"}}, want: RoleUser},
		{name: "административная группа", claims: Claims{Groups: []string{"devs", "sentinel-admins"}}, want: RoleAdmin},
		{name: "роль realm", claims: Claims{RealmRoles: []string{"offline_access", "admin"}}, want: RoleAdmin},
		{name: "claim is_admin", claims: Claims{AdminFlag: true}, want: RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Role(tt.claims); got != tt.want {
				t.Errorf("Role() = %q, хотели %q", got, tt.want)
			}
		})
	}
}

func TestHighestRole(t *testing.T) {
	if got := HighestRole(nil); got != RoleUser {
		t.Errorf("HighestRole(nil) = %q, хотели %q", got, RoleUser)
	}
	if got := HighestRole([]string{RoleUser, RoleAdmin, RoleUser}); got != RoleAdmin {
		t.Errorf("HighestRole() = %q, хотели %q", got, RoleAdmin)
	}
	if got := HighestRole([]string{"unknown"}); got != RoleUser {
		t.Errorf("HighestRole(unknown) = %q, хотели %q", got, RoleUser)
	}
}

func TestCanAccessReservation(t *testing.T) {
	owner := model.Identity{UserID: "u-1"}
	other := model.Identity{UserID: "u-2"}
	admin := model.Identity{UserID: "root", IsAdmin: true}

	if !CanAccessReservation(owner, "u-1") {
		t.Error("владелец должен иметь доступ")
	}
	if CanAccessReservation(other, "u-1") {
		t.Error("чужой пользователь не должен иметь доступ")
	}
	if !CanAccessReservation(admin, "u-1") {
		t.Error("администратор должен иметь доступ")
	}
	if CanAccessReservation(model.Identity{}, "") {
		t.Error("пустой субъект не должен совпадать с пустым владельцем")
	}
}

func TestCanListForUser(t *testing.T) {
	if !CanListForUser(model.Identity{UserID: "u-1"}, "u-1") {
		t.Error("свой список должен быть доступен")
	}
	if CanListForUser(model.Identity{UserID: "u-1"}, "u-2") {
		t.Error("чужой список не должен быть доступен")
	}
	if !CanListForUser(model.Identity{UserID: "root", IsAdmin: true}, "u-2") {
		t.Error("администратор видит любой список")
	}
	if CanManageCatalog(model.Identity{UserID: "u-1"}) {
		t.Error("обычный пользователь не управляет каталогом")
	}
}
