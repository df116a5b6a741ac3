package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermission_Satisfies(t *testing.T) {
	tests := []struct {
		name string
		held Permission
		req  Permission
		want bool
	}{
		{name: "equality", held: PermissionView, req: PermissionView, want: true},
		{name: "op satisfies everything", held: PermissionOp, req: PermissionManageAccounts, want: true},
		{name: "post implies view", held: PermissionPost, req: PermissionView, want: true},
		{name: "check implies view", held: PermissionCheck, req: PermissionView, want: true},
		{name: "manage implies view accounts", held: PermissionManageAccounts, req: PermissionViewAccounts, want: true},
		{name: "view does not imply post", held: PermissionView, req: PermissionPost, want: false},
		{name: "approve does not imply manage", held: PermissionApprove, req: PermissionManageAccounts, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.held.Satisfies(tt.req))
		})
	}
}

func TestPermissions_ContainsAll(t *testing.T) {
	held := Permissions{PermissionPost, PermissionApprove}

	assert.True(t, held.ContainsAll(PermissionView, PermissionApprove))
	assert.False(t, held.ContainsAll(PermissionView, PermissionManageAccounts))
	assert.True(t, held.ContainsAll(), "empty requirement always passes")

	assert.True(t, Permissions{PermissionOp}.ContainsAll(
		PermissionView, PermissionPost, PermissionCheck, PermissionApprove,
		PermissionViewAccounts, PermissionManageAccounts,
	))
}
