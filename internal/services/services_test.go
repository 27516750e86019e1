package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"purple-player/internal/database"
	"purple-player/internal/models"
	"purple-player/internal/presence"
)

func TestCreateAndJoinGroup(t *testing.T) {
	db := newTestDB(t)
	groups := NewGroupService(db)
	ctx := context.Background()

	createUser(t, db, "alice", "secret1")
	createUser(t, db, "bob", "secret1")

	if _, err := groups.CreateGroup(ctx, "alice", &models.CreateGroupRequest{Name: "  "}); !isValidation(err, "group_name_required") {
		t.Fatalf("expected group_name_required, got %v", err)
	}

	created, err := groups.CreateGroup(ctx, "alice", &models.CreateGroupRequest{Name: " Band ", Description: "weekend"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if created.Name != "Band" || created.Role != models.RoleAdmin || created.MembersCount != 1 {
		t.Fatalf("unexpected group: %+v", created)
	}
	if !regexp.MustCompile(`^[A-Z0-9]{16}$`).MatchString(created.Code) {
		t.Fatalf("bad group code %q", created.Code)
	}
	if _, err := groups.CreateGroup(ctx, "alice", &models.CreateGroupRequest{Name: "Again"}); !errors.Is(err, ErrAlreadyInGroup) {
		t.Fatalf("expected ErrAlreadyInGroup, got %v", err)
	}

	if _, err := groups.JoinGroup(ctx, "bob", "NOPE000000000000"); !errors.Is(err, ErrInvalidGroupCode) {
		t.Fatalf("expected ErrInvalidGroupCode, got %v", err)
	}
	joined, err := groups.JoinGroup(ctx, "bob", " "+strings.ToLower(created.Code)+" ")
	if err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	if joined.ID != created.ID || joined.Role != models.RoleMember || joined.MembersCount != 2 {
		t.Fatalf("unexpected join response: %+v", joined)
	}
	if _, err := groups.JoinGroup(ctx, "bob", created.Code); !errors.Is(err, ErrAlreadyInGroup) {
		t.Fatalf("expected ErrAlreadyInGroup on rejoin, got %v", err)
	}

	ok, err := groups.IsMember(ctx, "bob", created.ID)
	if err != nil || !ok {
		t.Fatalf("expected bob to be a member: %v", err)
	}
	if ok, _ := groups.IsMember(ctx, "ghost", created.ID); ok {
		t.Fatalf("unknown user should not be a member")
	}
}

func TestConcurrentJoinsKeepOneGroup(t *testing.T) {
	db := newTestDB(t)
	groups := NewGroupService(db)
	ctx := context.Background()

	createUser(t, db, "alice", "secret1")
	createUser(t, db, "carol", "secret1")
	createUser(t, db, "bob", "secret1")

	first, err := groups.CreateGroup(ctx, "alice", &models.CreateGroupRequest{Name: "First"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	second, err := groups.CreateGroup(ctx, "carol", &models.CreateGroupRequest{Name: "Second"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, code := range []string{first.Code, second.Code} {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			_, errs[i] = groups.JoinGroup(ctx, "bob", code)
		}(i, code)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		case !errors.Is(err, ErrAlreadyInGroup):
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if joined != 1 {
		t.Fatalf("expected exactly one join to succeed, got %d (%v)", joined, errs)
	}

	rows := 0
	for _, id := range []string{first.ID, second.ID} {
		members, err := db.ListGroupMembers(ctx, id)
		if err != nil {
			t.Fatalf("ListGroupMembers: %v", err)
		}
		for _, m := range members {
			if m.UserID == "bob" {
				rows++
			}
		}
	}
	if rows != 1 {
		t.Fatalf("bob has %d membership rows", rows)
	}
}

func TestLeaveGroupPromotesAndDeletes(t *testing.T) {
	db := newTestDB(t)
	groups := NewGroupService(db)
	ctx := context.Background()

	createUser(t, db, "alice", "secret1")
	createUser(t, db, "bob", "secret1")

	created, err := groups.CreateGroup(ctx, "alice", &models.CreateGroupRequest{Name: "Band"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := groups.JoinGroup(ctx, "bob", created.Code); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}

	deleted, err := groups.LeaveGroup(ctx, "alice")
	if err != nil || deleted {
		t.Fatalf("LeaveGroup alice: deleted=%v err=%v", deleted, err)
	}
	members, _ := groups.GroupMembers(ctx, created.ID)
	if len(members) != 1 || members[0].UserID != "bob" || members[0].Role != models.RoleAdmin {
		t.Fatalf("expected bob promoted, got %+v", members)
	}
	if _, err := groups.LeaveGroup(ctx, "alice"); !errors.Is(err, ErrNotInGroup) {
		t.Fatalf("expected ErrNotInGroup, got %v", err)
	}

	deleted, err = groups.LeaveGroup(ctx, "bob")
	if err != nil || !deleted {
		t.Fatalf("LeaveGroup bob: deleted=%v err=%v", deleted, err)
	}
}

func TestGroupInfoMembersOnly(t *testing.T) {
	db := newTestDB(t)
	groups := NewGroupService(db)
	tracker := presence.NewTracker(db, groups)
	ctx := context.Background()

	createUser(t, db, "alice", "secret1")
	createUser(t, db, "eve", "secret1")
	created, err := groups.CreateGroup(ctx, "alice", &models.CreateGroupRequest{Name: "Band"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if _, err := groups.GroupInfo(ctx, "eve", created.ID, tracker); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	info, err := groups.GroupInfo(ctx, "alice", created.ID, tracker)
	if err != nil {
		t.Fatalf("GroupInfo: %v", err)
	}
	if info.TotalMembers != 1 || info.Members[0].UserID != "alice" || !info.Members[0].IsOnline {
		t.Fatalf("unexpected group info: %+v", info)
	}
}

func TestTrackLifecycle(t *testing.T) {
	db := newTestDB(t)
	groups := NewGroupService(db)
	tracks := NewTrackService(db)
	ctx := context.Background()

	createUser(t, db, "alice", "secret1")
	createUser(t, db, "bob", "secret1")
	created, err := groups.CreateGroup(ctx, "alice", &models.CreateGroupRequest{Name: "Band"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := groups.JoinGroup(ctx, "bob", created.Code); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}

	bad := []struct {
		req  models.AddTrackRequest
		code string
	}{
		{models.AddTrackRequest{Title: "X", Artist: "Y", URL: "ftp://x"}, "invalid_url"},
		{models.AddTrackRequest{Title: " ", Artist: "Y", URL: "https://x"}, "title_required"},
		{models.AddTrackRequest{Title: "X", URL: "https://x"}, "artist_required"},
	}
	for _, c := range bad {
		if _, err := tracks.AddTrack(ctx, "alice", &c.req); !isValidation(err, c.code) {
			t.Fatalf("expected %s, got %v", c.code, err)
		}
	}

	top, err := tracks.TopTrack(ctx, "alice")
	if err != nil || top != nil {
		t.Fatalf("expected no top track yet: %+v %v", top, err)
	}

	added, err := tracks.AddTrack(ctx, "alice", &models.AddTrackRequest{
		Title: " Song ", Artist: "Artist", URL: "HTTPS://youtube.com/watch?v=1", Message: " for you ",
	})
	if err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if added.Title != "Song" || added.Message != "for you" || added.GroupID != created.ID {
		t.Fatalf("unexpected track: %+v", added)
	}
	if added.Adder == nil || added.Adder.ID != "alice" {
		t.Fatalf("expected adder populated: %+v", added.Adder)
	}

	group, _ := db.GetGroupByID(ctx, created.ID)
	if group.TotalSongs != 1 {
		t.Fatalf("expected total songs 1, got %d", group.TotalSongs)
	}

	list, err := tracks.ListTracks(ctx, "bob")
	if err != nil || len(list) != 1 {
		t.Fatalf("bob should see the group track: %v %v", list, err)
	}
	top, err = tracks.TopTrack(ctx, "bob")
	if err != nil || top == nil || top.ID != added.ID {
		t.Fatalf("unexpected top track: %+v %v", top, err)
	}

	if err := tracks.DeleteTrack(ctx, "bob", added.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := tracks.DeleteTrack(ctx, "alice", added.ID); err != nil {
		t.Fatalf("DeleteTrack: %v", err)
	}
	if err := tracks.DeleteTrack(ctx, "alice", added.ID); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountManagement(t *testing.T) {
	db := newTestDB(t)
	groups := NewGroupService(db)
	users := NewUserService(db, groups)
	tracks := NewTrackService(db)
	ctx := context.Background()

	createUser(t, db, "alice", "secret1")
	createUser(t, db, "bob", "secret1")
	created, err := groups.CreateGroup(ctx, "alice", &models.CreateGroupRequest{Name: "Band"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := groups.JoinGroup(ctx, "bob", created.Code); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	if _, err := tracks.AddTrack(ctx, "alice", &models.AddTrackRequest{Title: "A", Artist: "B", URL: "https://x"}); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}

	if _, err := users.UpdateProfile(ctx, "alice", &models.UpdateProfileRequest{Name: ""}); !isValidation(err, "name_required") {
		t.Fatalf("expected name_required, got %v", err)
	}
	profile, err := users.UpdateProfile(ctx, "alice", &models.UpdateProfileRequest{Name: "Alice", Avatar: "data:image/png;base64,AA"})
	if err != nil || profile.Name != "Alice" {
		t.Fatalf("UpdateProfile: %+v %v", profile, err)
	}

	if err := users.ChangePassword(ctx, "alice", &models.ChangePasswordRequest{CurrentPassword: "wrong1", NewPassword: "better2"}); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := users.ChangePassword(ctx, "alice", &models.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "short"}); !isValidation(err, "weak_password") {
		t.Fatalf("expected weak_password, got %v", err)
	}
	if err := users.ChangePassword(ctx, "alice", &models.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "better2"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if err := users.DeleteAccount(ctx, "alice", "secret1"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if err := users.DeleteAccount(ctx, "alice", "better2"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := users.GetProfile(ctx, "alice"); !errors.Is(err, database.ErrNotFound) {
		t.Fatalf("expected alice gone, got %v", err)
	}
	members, _ := groups.GroupMembers(ctx, created.ID)
	if len(members) != 1 || members[0].Role != models.RoleAdmin {
		t.Fatalf("expected bob to inherit admin, got %+v", members)
	}
	list, _ := tracks.ListTracks(ctx, "bob")
	if len(list) != 0 {
		t.Fatalf("expected alice's tracks removed, got %d", len(list))
	}
}

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"abc12":    false,
		"abcdef":   false,
		"123456":   false,
		"abc123":   true,
		"Passw0rd": true,
	}
	for password, ok := range cases {
		err := ValidatePassword(password)
		if (err == nil) != ok {
			t.Errorf("ValidatePassword(%q) = %v, want ok=%v", password, err, ok)
		}
	}
}

func isValidation(err error, code string) bool {
	var verr *ValidationError
	return errors.As(err, &verr) && verr.Code == code
}

func createUser(t *testing.T, db database.Database, id, password string) {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now()
	user := &models.User{
		ID:           id,
		Name:         id,
		Email:        id + "@example.com",
		PasswordHash: hash,
		IsOnline:     true,
		LastSeen:     now,
		CreatedAt:    now,
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser %s: %v", id, err)
	}
}

func newTestDB(t *testing.T) database.Database {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewSQLiteDB("sqlite://file:services_" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLiteDB: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
