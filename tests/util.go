package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/inquiry"
	"github.com/trezcool/piyuguide/core/notification"
	"github.com/trezcool/piyuguide/core/user"
)

// Config returns the TEST configuration, pinned to UTC.
func Config() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Timezone = "UTC"
	return conf
}

func CreateCampus(t *testing.T, repo user.Repository, name string) user.Campus {
	cmp, err := repo.CreateCampus(context.Background(), user.Campus{Name: name})
	if err != nil {
		t.Fatalf("createCampus() failed: %v", err)
	}
	return cmp
}

func CreateOffice(t *testing.T, repo user.Repository, campusID, name string, video bool) user.Office {
	off, err := repo.CreateOffice(context.Background(), user.Office{Name: name, CampusID: campusID, SupportsVideo: video})
	if err != nil {
		t.Fatalf("createOffice() failed: %v", err)
	}
	return off
}

func CreateUser(t *testing.T, repo user.Repository, name, email, role, campusID string, createdAt ...time.Time) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CampusID:  campusID,
		CreatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateOfficeAdmin creates an admin of `off` and returns it with its request principal.
func CreateOfficeAdmin(t *testing.T, repo user.Repository, off user.Office, name, email string) (user.User, user.Principal) {
	usr := CreateUser(t, repo, name, email, user.RoleOfficeAdmin, off.CampusID)
	if _, err := repo.AddOfficeAdmin(context.Background(), usr.ID, off.ID); err != nil {
		t.Fatalf("addOfficeAdmin() failed: %v", err)
	}
	return usr, user.Principal{
		UserID:   usr.ID,
		Name:     usr.Name,
		Email:    usr.Email,
		Role:     usr.Role,
		OfficeID: off.ID,
		CampusID: off.CampusID,
	}
}

func CreateStudent(t *testing.T, repo user.Repository, name, email, campusID string) user.User {
	usr := CreateUser(t, repo, name, email, user.RoleStudent, campusID)
	if _, err := repo.AddStudent(context.Background(), user.Student{UserID: usr.ID, StudentNumber: "S-" + usr.ID[:8]}); err != nil {
		t.Fatalf("addStudent() failed: %v", err)
	}
	return usr
}

// CreateSession stores `s` as is; a zero status means pending.
func CreateSession(t *testing.T, repo counseling.Repository, s counseling.Session) counseling.Session {
	if s.Status == "" {
		s.Status = counseling.StatusPending
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.ScheduledAt.Add(-24 * time.Hour)
		s.UpdatedAt = s.CreatedAt
	}
	s, err := repo.CreateSession(context.Background(), s)
	if err != nil {
		t.Fatalf("createSession() failed: %v", err)
	}
	return s
}

func CreateInquiry(t *testing.T, repo inquiry.Repository, inq inquiry.Inquiry) inquiry.Inquiry {
	if inq.Status == "" {
		inq.Status = inquiry.StatusPending
	}
	inq, err := repo.CreateInquiry(context.Background(), inq)
	if err != nil {
		t.Fatalf("createInquiry() failed: %v", err)
	}
	return inq
}

// MeetingStub hands out predictable credentials, or Err when set.
type MeetingStub struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (m *MeetingStub) Generate(_ context.Context, sessionID string) (counseling.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return counseling.Meeting{}, m.Err
	}
	id := fmt.Sprintf("meet-%d", m.Calls)
	return counseling.Meeting{ID: id, URL: "https://meet.test/" + id, Password: "pw-" + sessionID}, nil
}

// FileStoreStub keeps files in memory.
type FileStoreStub struct {
	mu      sync.Mutex
	Files   map[string][]byte
	SaveErr error
}

func NewFileStoreStub() *FileStoreStub {
	return &FileStoreStub{Files: make(map[string][]byte)}
}

func (fs *FileStoreStub) Save(_ context.Context, dir, filename string, r io.Reader) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.SaveErr != nil {
		return "", fs.SaveErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	path := fmt.Sprintf("%s/%d_%s", dir, len(fs.Files)+1, filename)
	fs.Files[path] = buf.Bytes()
	return path, nil
}

func (fs *FileStoreStub) Delete(_ context.Context, path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.Files, path)
	return nil
}

// PusherStub records pushed events per user.
type PusherStub struct {
	mu     sync.Mutex
	Err    error
	Pushed map[string]int
}

func NewPusherStub() *PusherStub {
	return &PusherStub{Pushed: make(map[string]int)}
}

// Count returns how many events userID got.
func (p *PusherStub) Count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Pushed[userID]
}

func (p *PusherStub) Push(_ context.Context, userID string, _ notification.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Pushed[userID]++
	return nil
}
