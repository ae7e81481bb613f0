package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPermission(t *testing.T) {
	t.Parallel()

	assert.True(t, CheckPermission(RoleAdmin, PermSendBulk))
	assert.True(t, CheckPermission(RoleUser, PermReadOwnInbox))
	assert.False(t, CheckPermission(RoleUser, PermSendBulk))
	assert.False(t, CheckPermission("GUEST", PermReadOwnInbox))
	assert.True(t, Any([]string{"GUEST", RoleAdmin}, PermViewStats))
	assert.False(t, Any(nil, PermViewStats))
}
