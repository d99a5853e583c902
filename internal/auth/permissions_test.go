package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePermissionsAdminList(t *testing.T) {
	p := ParsePermissions([]byte(`["admin", "metrics:read"]`))
	assert.Equal(t, PermissionAdmin, p.Kind)
	assert.True(t, p.Has("anything"))
}

func TestParsePermissionsAdminMap(t *testing.T) {
	p := ParsePermissions([]byte(`{"admin": true, "metrics:read": false}`))
	assert.Equal(t, PermissionAdmin, p.Kind)
	assert.True(t, p.Has("metrics:read"))
}

func TestParsePermissionsScopeList(t *testing.T) {
	p := ParsePermissions([]byte(`["metrics:read", "metrics:write"]`))
	assert.Equal(t, PermissionScopes, p.Kind)
	assert.True(t, p.Has("metrics:read"))
	assert.False(t, p.Has("metrics:delete"))
}

func TestParsePermissionsMap(t *testing.T) {
	p := ParsePermissions([]byte(`{"metrics:read": true, "metrics:write": false}`))
	assert.Equal(t, PermissionMap, p.Kind)
	assert.True(t, p.Has("metrics:read"))
	assert.False(t, p.Has("metrics:write"))
	assert.False(t, p.Has("metrics:delete"))
}

func TestParsePermissionsMalformed(t *testing.T) {
	p := ParsePermissions([]byte(`"just a string"`))
	assert.Equal(t, PermissionMalformed, p.Kind)
	assert.False(t, p.Has("anything"))
}
