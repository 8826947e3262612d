//go:build windows

package fileutil

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/windows"
)

// assertOwnerOnlyDACL checks that every ACE on path belongs to the
// process user.
func assertOwnerOnlyDACL(t *testing.T, path string) {
	t.Helper()

	token, err := windows.OpenCurrentProcessToken()
	if err != nil {
		t.Fatalf("OpenCurrentProcessToken: %v", err)
	}
	defer token.Close()
	user, err := token.GetTokenUser()
	if err != nil {
		t.Fatalf("GetTokenUser: %v", err)
	}

	sd, err := windows.GetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		t.Fatalf("GetNamedSecurityInfo(%s): %v", path, err)
	}
	dacl, _, err := sd.DACL()
	if err != nil || dacl == nil {
		t.Fatalf("DACL(%s): %v", path, err)
	}
	if dacl.AceCount == 0 {
		t.Fatalf("%s: empty DACL", path)
	}
	for i := range uint32(dacl.AceCount) {
		var ace *windows.ACCESS_ALLOWED_ACE
		if err := windows.GetAce(dacl, i, &ace); err != nil {
			t.Fatalf("GetAce(%d): %v", i, err)
		}
		sid := (*windows.SID)(unsafe.Pointer(&ace.SidStart))
		if !sid.Equals(user.User.Sid) {
			t.Errorf("%s: unexpected ACE for %s", path, sid)
		}
	}
}
