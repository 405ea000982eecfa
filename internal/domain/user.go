package domain

// Role: роль пользователя, выданная сервисом аутентификации.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User: учётная запись покупателя. Принадлежит внешнему сервису аутентификации,
// ядро только разрешает username в идентификатор.
type User struct {
	ID       string
	Username string
	Role     Role
}

// IsAdmin сообщает, есть ли у пользователя административные права.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
