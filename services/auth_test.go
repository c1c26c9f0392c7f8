package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

func TestUserScopes(t *testing.T) {
	user := &model.User{Scopes: "users:read users:write"}
	assert.Equal(t, []string{"users:read", "users:write"}, userScopes(user))
}

func TestUserScopesAdmin(t *testing.T) {
	user := &model.User{Scopes: "users:read", IsAdmin: true}
	assert.Contains(t, userScopes(user), shared.ScopeAdmin)
}

func TestUserScopesEmpty(t *testing.T) {
	assert.Empty(t, userScopes(&model.User{}))
}
