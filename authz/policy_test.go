package authz_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerid/core/authz"
	"github.com/ledgerid/core/ierr"
)

func TestRulesAllowDenyAndInheritance(t *testing.T) {
	rules := authz.NewRules().
		AddRole("member", false).
		AddRole("admin", false).
		AddMember("admin", "member").
		Allow("member", "user.read").
		Allow("admin", "user.write").
		Deny("member", "user.remove")

	require.NoError(t, rules.Allowed("member", "user.read"))
	require.NoError(t, rules.Allowed("admin", "user.read"), "admin inherits member's grants")
	require.NoError(t, rules.Allowed("admin", "user.write"))

	err := rules.Allowed("member", "user.write")
	require.Error(t, err)
	require.True(t, ierr.OfKind(err, ierr.PreconditionFailed))

	err = rules.Allowed("member", "user.remove")
	require.Error(t, err, "member is explicitly denied user.remove")
}

func TestRulesUnknownRoleRejected(t *testing.T) {
	rules := authz.NewRules().AddRole("member", true)
	err := rules.Allowed("ghost", "anything")
	require.Error(t, err)
	require.True(t, ierr.OfKind(err, ierr.PreconditionFailed))
}

func TestRulesDefaultAllowRole(t *testing.T) {
	rules := authz.NewRules().AddRole("owner", true).Deny("owner", "org.remove")
	require.NoError(t, rules.Allowed("owner", "org.update"), "default-allow role permits unlisted actions")
	require.Error(t, rules.Allowed("owner", "org.remove"))
}
