package wallet

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/paxdriver/KriSYS/internal/custody"
	"github.com/paxdriver/KriSYS/internal/db"
	"github.com/paxdriver/KriSYS/internal/testutil"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	store, err := db.NewStoreFromDSN("sqlite", testutil.MemoryDSN(t, "wallet"))
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	master := custody.NewMasterKey(t.TempDir(), nil)
	if _, err := master.Ensure(); err != nil {
		t.Fatalf("master key: %v", err)
	}
	escrow, err := custody.NewEscrow(master, nil, nil)
	if err != nil {
		t.Fatalf("NewEscrow: %v", err)
	}
	return NewManager(store, escrow, nil)
}

var memberID = regexp.MustCompile(`^[0-9a-f]{24}-[0-9a-f]{8}$`)

func TestCreateWallet(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	w, err := m.Create(ctx, "Hurricane_Bobo", DefaultNames(3), []byte("family pass"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(w.ID) != 24 || len(w.Members) != 3 {
		t.Fatalf("unexpected wallet %+v", w)
	}
	for _, mem := range w.Members {
		if !memberID.MatchString(mem.ID) || mem.Address != mem.ID || !strings.HasPrefix(mem.ID, w.ID) {
			t.Fatalf("bad member %+v", mem)
		}
	}

	got, err := m.Get(ctx, w.ID)
	if err != nil || got.CrisisID != "Hurricane_Bobo" || len(got.Members) != 3 {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	// A fresh manager reads through to the store.
	fresh := NewManager(m.store, m.escrow, nil)
	if got, err := fresh.Get(ctx, w.ID); err != nil || got.Members[2].ID != w.Members[2].ID {
		t.Fatalf("store read = %+v, %v", got, err)
	}
}

func TestCreateValidation(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	cases := []struct {
		name  string
		n     int
		pass  string
		error error
	}{
		{"no members", 0, "p", ErrInvalidMembers},
		{"too many", MaxMembers + 1, "p", ErrInvalidMembers},
		{"no passphrase", 2, "", ErrPassphraseRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Create(ctx, "c", DefaultNames(tc.n), []byte(tc.pass)); !errors.Is(err, tc.error) {
				t.Fatalf("expected %v, got %v", tc.error, err)
			}
		})
	}
	if _, err := m.Create(ctx, "c", DefaultNames(MaxMembers), []byte("p")); err != nil {
		t.Fatalf("max members rejected: %v", err)
	}
}

func TestMembersAndDevices(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	w, err := m.Create(ctx, "c", DefaultNames(1), []byte("p"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	mem, err := m.AddMember(ctx, w.ID, "Grandma")
	if err != nil || mem.Name != "Grandma" {
		t.Fatalf("AddMember = %+v, %v", mem, err)
	}
	d, err := m.RegisterDevice(ctx, w.ID, "", "PUB")
	if err != nil || d.ID == "" || d.RegisteredAt == 0 {
		t.Fatalf("RegisterDevice = %+v, %v", d, err)
	}
	if _, err := m.RegisterDevice(ctx, w.ID, "phone-1", "PUB2"); err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	fresh := NewManager(m.store, m.escrow, nil)
	got, err := fresh.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Members) != 2 || len(got.Devices) != 2 || got.Devices[1].ID != "phone-1" {
		t.Fatalf("persisted wallet = %+v", got)
	}
	addrs, _ := fresh.Addresses(ctx, w.ID)
	if len(addrs) != 2 || addrs[1] != mem.Address {
		t.Fatalf("Addresses = %v", addrs)
	}
	if _, err := m.AddMember(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	w, err := m.Create(ctx, "Hurricane_Bobo", DefaultNames(1), []byte("pass"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := m.AddMember(ctx, w.ID, "Relative")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := m.RegisterDevice(ctx, w.ID, "", "PUB")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}

	fresh := NewManager(m.store, m.escrow, nil)
	got, err := fresh.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Members) != n+1 || len(got.Devices) != n {
		t.Fatalf("stored %d members and %d devices, want %d and %d", len(got.Members), len(got.Devices), n+1, n)
	}
}

func TestEncryptForAndUnlock(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	w, err := m.Create(ctx, "c", DefaultNames(2), []byte("correct horse"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	msg, err := m.EncryptFor(ctx, w.ID, []byte("water at the north gate"))
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}

	key, err := m.Unlock(ctx, w.ID, []byte("correct horse"))
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	var plain []byte
	err = key.Use(func(b []byte) error {
		return custody.UseExported(b, func(u custody.UnlockedKey) error {
			var derr error
			plain, derr = u.Decrypt(msg)
			return derr
		})
	})
	if err != nil || string(plain) != "water at the north gate" {
		t.Fatalf("decrypt = %q, %v", plain, err)
	}

	if _, err := m.Unlock(ctx, w.ID, []byte("wrong")); !errors.Is(err, custody.ErrAuthenticationFailed) {
		t.Fatalf("wrong passphrase: %v", err)
	}
	if _, err := m.Unlock(ctx, "nope", []byte("correct horse")); !errors.Is(err, custody.ErrAuthenticationFailed) {
		t.Fatalf("unknown wallet: %v", err)
	}
}

func TestDeleteRemovesWalletAndKeys(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	w, err := m.Create(ctx, "c", DefaultNames(1), []byte("p"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Delete(ctx, w.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if _, err := m.PublicKey(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("PublicKey after delete: %v", err)
	}
	if err := m.Delete(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete: %v", err)
	}
}
