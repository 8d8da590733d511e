package platform

import "testing"

func TestFindMemberMatchOrder(t *testing.T) {
	members := []*Member{
		{UserID: "1", Username: "alice", Tag: "alice#0", GlobalName: "Alice A"},
		{UserID: "2", Username: "bob", Tag: "muhammadumer.eth", GlobalName: "Bob"},
		{UserID: "3", Username: "muhammadumer", Tag: "muhammadumer#1234", GlobalName: "Umer"},
		{UserID: "4", Username: "carol", Tag: "carol#0", GlobalName: "muhammadumer"},
	}

	cases := []struct {
		name       string
		identifier string
		wantUserID string
	}{
		// A username match anywhere beats a tag match on an earlier member.
		{"username beats tag", "muhammadumer", "3"},
		{"tag match", "muhammadumer.eth", "2"},
		{"global name match", "Alice A", "1"},
		{"plain username", "bob", "2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindMember(members, tc.identifier)
			if got == nil {
				t.Fatalf("FindMember(%q) = nil, want user %s", tc.identifier, tc.wantUserID)
			}
			if got.UserID != tc.wantUserID {
				t.Errorf("FindMember(%q) = user %s, want %s", tc.identifier, got.UserID, tc.wantUserID)
			}
		})
	}
}

func TestFindMemberNoMatch(t *testing.T) {
	members := []*Member{
		{UserID: "1", Username: "alice", Tag: "alice#0"},
	}
	if got := FindMember(members, "ghost123"); got != nil {
		t.Errorf("FindMember(ghost123) = %+v, want nil", got)
	}
	if got := FindMember(nil, "anyone"); got != nil {
		t.Errorf("FindMember on empty list = %+v, want nil", got)
	}
}

func TestFindMemberEmptyGlobalNameNeverMatches(t *testing.T) {
	members := []*Member{
		{UserID: "1", Username: "alice", Tag: "alice#0", GlobalName: ""},
	}
	if got := FindMember(members, ""); got != nil {
		t.Errorf("empty identifier must not match empty global name, got %+v", got)
	}
}
