package wa

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/i9placesolutions/pulse-salon-manager-sub001/internal/repo"
)

type fakeBSP struct {
	mu          sync.Mutex
	created     []string
	connected   []string
	status      Instance
	statusErr   error
	createToken string
}

func (f *fakeBSP) CreateInstance(ctx context.Context, name string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return &Instance{Token: f.createToken, Name: name, Status: StatusDisconnected}, nil
}

func (f *fakeBSP) Connect(ctx context.Context, token string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, token)
	return &Instance{Status: StatusDisconnected, QRCode: "qr-data"}, nil
}

func (f *fakeBSP) Status(ctx context.Context, token string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	inst := f.status
	return &inst, nil
}

func (f *fakeBSP) setStatus(inst Instance) {
	f.mu.Lock()
	f.status = inst
	f.mu.Unlock()
}

func (f *fakeBSP) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeInstanceStore struct {
	mu        sync.Mutex
	instances map[string]repo.MessagingInstance
	statuses  []string
}

func newFakeInstanceStore() *fakeInstanceStore {
	return &fakeInstanceStore{instances: make(map[string]repo.MessagingInstance)}
}

func (f *fakeInstanceStore) UpsertMessagingInstance(ctx context.Context, inst repo.MessagingInstance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances[inst.Name] = inst
	return nil
}

func (f *fakeInstanceStore) UpdateMessagingInstanceStatus(ctx context.Context, token, status string, profileName *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	for name, inst := range f.instances {
		if inst.Token == token {
			inst.Status = status
			inst.ProfileName = profileName
			f.instances[name] = inst
		}
	}
	return nil
}

func (f *fakeInstanceStore) GetMessagingInstance(ctx context.Context, name string) (*repo.MessagingInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.instances[name]
	if !ok {
		return nil, repo.ErrInstanceNotFound
	}
	return &inst, nil
}

func (f *fakeInstanceStore) storedStatus(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instances[name].Status
}

func newTestManager(t *testing.T, bsp *fakeBSP, store *fakeInstanceStore) *Manager {
	t.Helper()
	m := NewManager(context.Background(), ManagerConfig{
		Client:       bsp,
		Store:        store,
		PollInterval: 5 * time.Millisecond,
	}, slog.Default(), nil)
	t.Cleanup(m.Close)
	return m
}

func TestConnectInstanceProvisionsAndPolls(t *testing.T) {
	bsp := &fakeBSP{createToken: "tok-1", status: Instance{Status: StatusDisconnected}}
	store := newFakeInstanceStore()
	m := newTestManager(t, bsp, store)

	res, err := m.ConnectInstance(context.Background(), "salon-main", "prof-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.QRCode != "qr-data" {
		t.Fatalf("expected QR code surfaced, got %q", res.QRCode)
	}
	if bsp.createCount() != 1 {
		t.Fatalf("expected one instance provisioned, got %d", bsp.createCount())
	}
	if !m.polling("salon-main") {
		t.Fatal("expected poll session running")
	}

	bsp.setStatus(Instance{Status: StatusConnected, ProfileName: "Salon"})

	deadline := time.Now().Add(2 * time.Second)
	for store.storedStatus("salon-main") != StatusConnected {
		if time.Now().After(deadline) {
			t.Fatal("connected status never persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	deadline = time.Now().Add(time.Second)
	for m.polling("salon-main") {
		if time.Now().After(deadline) {
			t.Fatal("poll session not removed after connect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnectInstanceReusesStoredToken(t *testing.T) {
	bsp := &fakeBSP{createToken: "tok-new", status: Instance{Status: StatusDisconnected}}
	store := newFakeInstanceStore()
	store.instances["salon-main"] = repo.MessagingInstance{Token: "tok-old", Name: "salon-main"}
	m := newTestManager(t, bsp, store)

	if _, err := m.ConnectInstance(context.Background(), "salon-main", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bsp.createCount() != 0 {
		t.Fatal("expected no provisioning for a known instance")
	}
	bsp.mu.Lock()
	token := bsp.connected[0]
	bsp.mu.Unlock()
	if token != "tok-old" {
		t.Fatalf("expected stored token reused, got %s", token)
	}
}

func TestConnectInstanceRequiresName(t *testing.T) {
	m := newTestManager(t, &fakeBSP{}, newFakeInstanceStore())
	if _, err := m.ConnectInstance(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestCancelConnectIsIdempotent(t *testing.T) {
	bsp := &fakeBSP{createToken: "tok-1", status: Instance{Status: StatusDisconnected}}
	store := newFakeInstanceStore()
	m := newTestManager(t, bsp, store)

	if _, err := m.ConnectInstance(context.Background(), "salon-main", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.CancelConnect("salon-main") {
		t.Fatal("expected first cancel to stop the session")
	}
	if m.CancelConnect("salon-main") {
		t.Fatal("expected repeat cancel to report nothing running")
	}
	if m.CancelConnect("never-started") {
		t.Fatal("expected cancel of unknown instance to report false")
	}
}

func TestInstanceStatusFallsBackToStored(t *testing.T) {
	bsp := &fakeBSP{statusErr: errors.New("bsp down")}
	store := newFakeInstanceStore()
	profile := "Salon"
	store.instances["salon-main"] = repo.MessagingInstance{
		Token:       "tok-1",
		Name:        "salon-main",
		Status:      StatusConnected,
		ProfileName: &profile,
	}
	m := newTestManager(t, bsp, store)

	snap, err := m.InstanceStatus(context.Background(), "salon-main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Status != StatusConnected {
		t.Fatalf("expected stored status served, got %s", snap.Status)
	}
	if snap.ProfileName != "Salon" {
		t.Fatalf("expected stored profile name, got %q", snap.ProfileName)
	}
}

func TestInstanceStatusUnknownInstance(t *testing.T) {
	m := newTestManager(t, &fakeBSP{}, newFakeInstanceStore())
	if _, err := m.InstanceStatus(context.Background(), "missing"); !errors.Is(err, repo.ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}
