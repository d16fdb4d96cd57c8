// Пакет rbac — определение роли субъекта и правила доступа к ресурсам.
// Роль вычисляется из групп и ролей IdP; итоговая роль — максимальная из совпавших.
package rbac

import "github.com/xiaocunxcx/ServerSentinel/internal/domain/model"

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// roleWeight — вес роли для сравнения.
var roleWeight = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Пустой набор — RoleUser: любой аутентифицированный субъект может резервировать.
func HighestRole(roles []string) string {
	highest := RoleUser
	for _, r := range roles {
		highest = maxRole(highest, r)
	}
	return highest
}

// Claims — сведения IdP, влияющие на роль.
type Claims struct {
	Groups     []string
	RealmRoles []string
	// AdminFlag — явный булев claim is_admin
	AdminFlag bool
}

// Policy сопоставляет группы и роли IdP с ролями сервиса.
type Policy struct {
	adminGroups map[string]bool
	adminRoles  map[string]bool
}

// NewPolicy создаёт политику из списков административных групп и ролей.
func NewPolicy(adminGroups, adminRoles []string) *Policy {
	return &Policy{
		adminGroups: toSet(adminGroups),
		adminRoles:  toSet(adminRoles),
	}
}

// Role вычисляет роль субъекта.
func (p *Policy) Role(c Claims) string {
	var roles []string
	if c.AdminFlag {
		roles = append(roles, RoleAdmin)
	}
	for _, g := range c.Groups {
		if p.adminGroups[g] {
			roles = append(roles, RoleAdmin)
		}
	}
	for _, r := range c.RealmRoles {
		if p.adminRoles[r] {
			roles = append(roles, RoleAdmin)
		}
	}
	return HighestRole(roles)
}

// CanAccessReservation — владелец или администратор.
// Применяется к чтению и удалению конкретного резервирования.
func CanAccessReservation(id model.Identity, ownerID string) bool {
	return id.IsAdmin || (id.UserID != "" && id.UserID == ownerID)
}

// CanListForUser — администратор видит любого пользователя, остальные только себя.
func CanListForUser(id model.Identity, userID string) bool {
	return id.IsAdmin || id.UserID == userID
}

// CanManageCatalog — изменять каталог узлов может только администратор.
func CanManageCatalog(id model.Identity) bool {
	return id.IsAdmin
}

// toSet конвертирует срез строк в map для быстрого поиска.
func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
