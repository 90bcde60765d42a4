package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/fabric/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"RoleID", id.NewRoleID, "role_"},
		{"PermissionID", id.NewPermissionID, "perm_"},
		{"GroupID", id.NewGroupID, "grp_"},
		{"UserID", id.NewUserID, "usr_"},
		{"SecurableItemID", id.NewSecurableItemID, "item_"},
		{"ClientID", id.NewClientID, "clnt_"},
		{"GranularID", id.NewGranularID, "gperm_"},
		{"DecisionLogID", id.NewDecisionLogID, "dlog_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixRole)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixRole {
		t.Errorf("expected prefix %q, got %q", id.PrefixRole, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"RoleID", id.NewRoleID, id.ParseRoleID},
		{"PermissionID", id.NewPermissionID, id.ParsePermissionID},
		{"GroupID", id.NewGroupID, id.ParseGroupID},
		{"UserID", id.NewUserID, id.ParseUserID},
		{"SecurableItemID", id.NewSecurableItemID, id.ParseSecurableItemID},
		{"ClientID", id.NewClientID, id.ParseClientID},
		{"GranularID", id.NewGranularID, id.ParseGranularID},
		{"DecisionLogID", id.NewDecisionLogID, id.ParseDecisionLogID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	roleID := id.NewRoleID()
	if _, err := id.ParseGroupID(roleID.String()); err == nil {
		t.Fatal("expected group parse of role ID to fail")
	}
	if _, err := id.ParsePermissionID(roleID.String()); err == nil {
		t.Fatal("expected permission parse of role ID to fail")
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Fatal("zero value should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID should stringify empty, got %q", i.String())
	}
	v, err := i.Value()
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("nil ID should store NULL, got %v", v)
	}
}

func TestScanRoundTrip(t *testing.T) {
	original := id.NewSecurableItemID()
	var scanned id.ID
	if err := scanned.Scan(original.String()); err != nil {
		t.Fatal(err)
	}
	if scanned.String() != original.String() {
		t.Errorf("scan mismatch: %q != %q", scanned.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatal(err)
	}
	if !fromNil.IsNil() {
		t.Fatal("scanning NULL should yield nil ID")
	}
}
