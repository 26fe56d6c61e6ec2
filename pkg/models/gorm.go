package models

// ModelsToAutoMigrate returns the models managed by GORM AutoMigrate, in
// dependency order.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Organization{}, // Must be first - users reference it
		&User{},
		&OrganizationMember{},
		&Role{},
		&UserRoleAssignment{},
		&Token{},
	}
}
