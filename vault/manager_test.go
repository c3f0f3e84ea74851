// ABOUTME: Tests for the key lifecycle manager over injected storage.
// ABOUTME: Covers generate, recover, load, clear, existence, and delegation.
package vault

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestManagerInitialState(t *testing.T) {
	m := NewManager(NewMemoryStore(), Config{})
	if m.State() != StateUninitialized {
		t.Errorf("state %q, want %q", m.State(), StateUninitialized)
	}
	if m.PrivateKey() != nil || m.PublicKey() != nil || m.Mnemonic() != "" {
		t.Error("fresh manager should hold no key material")
	}

	if err := m.Save(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Save: expected ErrNotReady, got %v", err)
	}
	if _, err := m.EncryptString("x"); !errors.Is(err, ErrNotReady) {
		t.Errorf("EncryptString: expected ErrNotReady, got %v", err)
	}
	if _, err := m.DecryptString("x"); !errors.Is(err, ErrNotReady) {
		t.Errorf("DecryptString: expected ErrNotReady, got %v", err)
	}
	if _, err := m.EncryptForStorage(nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("EncryptForStorage: expected ErrNotReady, got %v", err)
	}
	if _, err := m.PrepareForTransmission(nil); !errors.Is(err, ErrNotReady) {
		t.Errorf("PrepareForTransmission: expected ErrNotReady, got %v", err)
	}
}

func TestManagerGenerate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, Config{KeySize: MinKeySize, Platform: PlatformIOS})

	var milestones []string
	phrase, err := m.Generate(ctx, recordingEvents(&milestones))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !ValidateMnemonic(phrase) {
		t.Errorf("generated phrase does not validate: %q", phrase)
	}
	if m.State() != StateReady {
		t.Errorf("state %q, want %q", m.State(), StateReady)
	}
	if m.Mnemonic() != phrase {
		t.Error("manager mnemonic does not match returned phrase")
	}
	if got := m.PrivateKey().N.BitLen(); got != MinKeySize {
		t.Errorf("key is %d bits, want %d", got, MinKeySize)
	}

	meta := m.Metadata()
	if meta.Version != bundleVersion || meta.KeySize != MinKeySize {
		t.Errorf("metadata version/keySize = %d/%d", meta.Version, meta.KeySize)
	}
	if meta.Platform != PlatformIOS || meta.StorageLocation != "Keychain" {
		t.Errorf("metadata platform/location = %q/%q", meta.Platform, meta.StorageLocation)
	}

	ex := m.CheckExistence(ctx)
	if !ex.Complete() || !ex.Metadata {
		t.Errorf("expected full bundle in storage, got %+v", ex)
	}

	want := []string{"seed", "prime 1/2", "prime 2/2", "assembled", "persisted", "complete"}
	if len(milestones) != len(want) {
		t.Fatalf("milestones %v, want %v", milestones, want)
	}
	for i := range want {
		if milestones[i] != want[i] {
			t.Errorf("milestone %d: got %q, want %q", i, milestones[i], want[i])
		}
	}
}

func TestManagerGenerateEntropyFailure(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), Config{Rand: errReader{}})

	if _, err := m.Generate(ctx); !errors.Is(err, ErrEntropyFailure) {
		t.Errorf("expected ErrEntropyFailure, got %v", err)
	}
	if m.State() != StateUninitialized {
		t.Errorf("state %q after failed generate, want %q", m.State(), StateUninitialized)
	}
	if ex := m.CheckExistence(ctx); ex.PrivateKey || ex.PublicKey || ex.Mnemonic || ex.Metadata {
		t.Errorf("failed generate wrote to storage: %+v", ex)
	}
}

func TestManagerGenerateEntropyFailureWhileReady(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedBundle(t, store, DefaultNamespace, testKey(t), testPhrase)

	m := NewManager(store, Config{Rand: errReader{}})
	if !m.Load(ctx) {
		t.Fatal("Load failed on a complete bundle")
	}

	if _, err := m.Generate(ctx); !errors.Is(err, ErrEntropyFailure) {
		t.Errorf("expected ErrEntropyFailure, got %v", err)
	}
	// The failed attempt must not leave the previous identity active.
	if m.State() != StateUninitialized {
		t.Errorf("state %q after failed generate, want %q", m.State(), StateUninitialized)
	}
	if m.PrivateKey() != nil || m.Mnemonic() != "" {
		t.Error("failed generate left the previous identity in memory")
	}

	// The stored bundle is untouched and can still be loaded.
	again := NewManager(store, Config{})
	if !again.Load(ctx) {
		t.Fatal("stored bundle no longer loads after failed generate")
	}
	if again.Mnemonic() != testPhrase {
		t.Error("stored bundle changed after failed generate")
	}
}

func TestManagerGenerateRejectsSmallKeySize(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), Config{KeySize: 1024})

	if _, err := m.Generate(ctx); !errors.Is(err, ErrKeySizeTooSmall) {
		t.Errorf("expected ErrKeySizeTooSmall, got %v", err)
	}
	if m.State() != StateUninitialized {
		t.Errorf("state %q after rejected generate, want %q", m.State(), StateUninitialized)
	}
	if ex := m.CheckExistence(ctx); ex.PrivateKey || ex.PublicKey || ex.Mnemonic || ex.Metadata {
		t.Errorf("rejected generate wrote to storage: %+v", ex)
	}
}

func TestManagerPersistFailureResets(t *testing.T) {
	ctx := context.Background()
	broken := &flakyStore{inner: NewMemoryStore(), failures: 100}
	m := NewManager(broken, Config{KeySize: MinKeySize})

	if err := m.Recover(ctx, testPhrase); err == nil {
		t.Fatal("Recover succeeded despite a failing store")
	}
	// Ready must never disagree with what storage holds.
	if m.State() != StateUninitialized {
		t.Errorf("state %q after failed persist, want %q", m.State(), StateUninitialized)
	}
	if m.PrivateKey() != nil || m.Mnemonic() != "" {
		t.Error("failed persist left key material in memory")
	}
}

func TestManagerGenerateRecoverEquivalence(t *testing.T) {
	ctx := context.Background()
	cfg := Config{KeySize: MinKeySize}

	storeA := NewMemoryStore()
	a := NewManager(storeA, cfg)
	phrase, err := a.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	storeB := NewMemoryStore()
	b := NewManager(storeB, cfg)
	if err := b.Recover(ctx, phrase); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	if a.PrivateKey().N.Cmp(b.PrivateKey().N) != 0 || a.PrivateKey().D.Cmp(b.PrivateKey().D) != 0 {
		t.Error("recovered key pair differs from generated one")
	}

	// The persisted bundles must agree byte for byte on the key fields.
	ns := DefaultNamespace
	for _, field := range []string{ns.privateKeyField(), ns.publicKeyField(), ns.mnemonicField()} {
		va, err := storeA.Get(ctx, field)
		if err != nil {
			t.Fatalf("read %s from store A: %v", field, err)
		}
		vb, err := storeB.Get(ctx, field)
		if err != nil {
			t.Fatalf("read %s from store B: %v", field, err)
		}
		if va != vb {
			t.Errorf("field %s differs between generated and recovered bundles", field)
		}
	}
}

func TestManagerRecover(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), Config{KeySize: MinKeySize})

	if err := m.Recover(ctx, testPhrase); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if m.State() != StateReady {
		t.Errorf("state %q, want %q", m.State(), StateReady)
	}
	if m.PrivateKey().N.Cmp(testKey(t).N) != 0 {
		t.Error("recovered key does not match the key this phrase derives")
	}
	if m.Mnemonic() != testPhrase {
		t.Error("manager mnemonic does not match recovered phrase")
	}
	if !m.CheckExistence(ctx).Complete() {
		t.Error("recover did not persist the bundle")
	}
}

func TestManagerRecoverInvalidPhrase(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), Config{})

	err := m.Recover(ctx, "definitely not twenty four valid words")
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("expected ErrInvalidMnemonic, got %v", err)
	}
	if m.State() != StateUninitialized {
		t.Errorf("state %q after invalid recover, want %q", m.State(), StateUninitialized)
	}
	if ex := m.CheckExistence(ctx); ex.PrivateKey || ex.Mnemonic {
		t.Error("invalid recover touched storage")
	}
}

func TestManagerLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedBundle(t, store, DefaultNamespace, testKey(t), testPhrase)

	m := NewManager(store, Config{})
	if !m.Load(ctx) {
		t.Fatal("Load failed on a complete bundle")
	}
	if m.State() != StateReady {
		t.Errorf("state %q, want %q", m.State(), StateReady)
	}
	if m.PrivateKey().N.Cmp(testKey(t).N) != 0 {
		t.Error("loaded key does not match stored key")
	}
	if m.Mnemonic() != testPhrase {
		t.Error("loaded mnemonic does not match stored phrase")
	}
	if m.Metadata().Version != bundleVersion {
		t.Errorf("metadata version %d, want %d", m.Metadata().Version, bundleVersion)
	}
}

func TestManagerLoadAbsent(t *testing.T) {
	m := NewManager(NewMemoryStore(), Config{})
	if m.Load(context.Background()) {
		t.Error("Load succeeded on an empty store")
	}
	if m.State() != StateUninitialized {
		t.Errorf("state %q, want %q", m.State(), StateUninitialized)
	}
}

func TestManagerLoadInvalidBundle(t *testing.T) {
	ctx := context.Background()
	ns := DefaultNamespace

	corrupt := NewMemoryStore()
	seedBundle(t, corrupt, ns, testKey(t), testPhrase)
	if err := corrupt.Set(ctx, ns.privateKeyField(), "not a pem key"); err != nil {
		t.Fatalf("corrupt store: %v", err)
	}
	if NewManager(corrupt, Config{}).Load(ctx) {
		t.Error("Load succeeded with a corrupt private key")
	}

	mismatched := NewMemoryStore()
	seedBundle(t, mismatched, ns, testKey(t), testPhrase)
	otherPub, err := EncodePublicKey(&testKeyB(t).PublicKey)
	if err != nil {
		t.Fatalf("encode public key: %v", err)
	}
	if err := mismatched.Set(ctx, ns.publicKeyField(), otherPub); err != nil {
		t.Fatalf("mismatch store: %v", err)
	}
	if NewManager(mismatched, Config{}).Load(ctx) {
		t.Error("Load succeeded with mismatched key halves")
	}

	partial := NewMemoryStore()
	seedBundle(t, partial, ns, testKey(t), testPhrase)
	if err := partial.Delete(ctx, ns.mnemonicField()); err != nil {
		t.Fatalf("partial store: %v", err)
	}
	if NewManager(partial, Config{}).Load(ctx) {
		t.Error("Load succeeded without the mnemonic field")
	}
}

func TestManagerLoadLegacyBundle(t *testing.T) {
	ctx := context.Background()
	ns := DefaultNamespace
	store := NewMemoryStore()
	seedBundle(t, store, ns, testKey(t), testPhrase)
	if err := store.Delete(ctx, ns.metadataField()); err != nil {
		t.Fatalf("delete metadata: %v", err)
	}

	m := NewManager(store, Config{Platform: PlatformAndroid})
	if !m.Load(ctx) {
		t.Fatal("Load failed on a bundle without metadata")
	}
	meta := m.Metadata()
	if meta.Version != 0 || !meta.Timestamp.IsZero() {
		t.Errorf("synthesized metadata version/timestamp = %d/%v", meta.Version, meta.Timestamp)
	}
	if meta.KeySize != testKey(t).N.BitLen() {
		t.Errorf("synthesized key size %d, want %d", meta.KeySize, testKey(t).N.BitLen())
	}
	if meta.Platform != PlatformAndroid {
		t.Errorf("synthesized platform %q, want %q", meta.Platform, PlatformAndroid)
	}
}

func TestManagerLoadCorruptMetadata(t *testing.T) {
	ctx := context.Background()
	ns := DefaultNamespace
	store := NewMemoryStore()
	seedBundle(t, store, ns, testKey(t), testPhrase)
	if err := store.Set(ctx, ns.metadataField(), "{ not json"); err != nil {
		t.Fatalf("corrupt metadata: %v", err)
	}

	m := NewManager(store, Config{})
	if !m.Load(ctx) {
		t.Fatal("Load failed on unparseable metadata")
	}
	if m.Metadata().Version != 0 {
		t.Errorf("expected synthesized metadata, got version %d", m.Metadata().Version)
	}
}

func TestManagerClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedBundle(t, store, DefaultNamespace, testKey(t), testPhrase)

	m := NewManager(store, Config{})
	if !m.Load(ctx) {
		t.Fatal("Load failed")
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if m.State() != StateUninitialized {
		t.Errorf("state %q after clear, want %q", m.State(), StateUninitialized)
	}
	if m.PrivateKey() != nil || m.Mnemonic() != "" {
		t.Error("clear left key material in memory")
	}
	if ex := m.CheckExistence(ctx); ex.PrivateKey || ex.PublicKey || ex.Mnemonic || ex.Metadata {
		t.Errorf("clear left fields in storage: %+v", ex)
	}
	if m.Load(ctx) {
		t.Error("Load succeeded after clear")
	}
}

func TestManagerCheckExistencePartial(t *testing.T) {
	ctx := context.Background()
	ns := DefaultNamespace
	store := NewMemoryStore()
	seedBundle(t, store, ns, testKey(t), testPhrase)
	if err := store.Delete(ctx, ns.privateKeyField()); err != nil {
		t.Fatalf("delete private key: %v", err)
	}

	ex := NewManager(store, Config{}).CheckExistence(ctx)
	if ex.PrivateKey {
		t.Error("private key reported present after delete")
	}
	if !ex.PublicKey || !ex.Mnemonic || !ex.Metadata {
		t.Errorf("remaining fields should be present: %+v", ex)
	}
	if ex.Complete() {
		t.Error("bundle without private key reported complete")
	}
}

func TestManagerDelegation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedBundle(t, store, DefaultNamespace, testKey(t), testPhrase)
	m := NewManager(store, Config{})
	if !m.Load(ctx) {
		t.Fatal("Load failed")
	}

	env, err := m.EncryptString("delegated secret")
	if err != nil {
		t.Fatalf("EncryptString failed: %v", err)
	}
	back, err := m.DecryptString(env)
	if err != nil {
		t.Fatalf("DecryptString failed: %v", err)
	}
	if back != "delegated secret" {
		t.Errorf("expected %q got %q", "delegated secret", back)
	}

	frame, err := m.EncryptForStorage([]byte("frame data"))
	if err != nil {
		t.Fatalf("EncryptForStorage failed: %v", err)
	}
	fromFrame, err := m.DecryptFromStorage(frame)
	if err != nil {
		t.Fatalf("DecryptFromStorage failed: %v", err)
	}
	if string(fromFrame) != "frame data" {
		t.Error("storage frame round trip mismatch")
	}

	tx, err := m.PrepareForTransmission([]byte("wire data"))
	if err != nil {
		t.Fatalf("PrepareForTransmission failed: %v", err)
	}
	fromTx, err := m.DecryptTransmission(tx)
	if err != nil {
		t.Fatalf("DecryptTransmission failed: %v", err)
	}
	if string(fromTx) != "wire data" {
		t.Error("transmission round trip mismatch")
	}
}

// seedBundle writes a complete bundle for key and phrase into store under ns,
// using the same encodings the manager persists.
func seedBundle(t *testing.T, store Storage, ns Namespace, key *rsa.PrivateKey, phrase string) {
	t.Helper()
	ctx := context.Background()

	pubPEM, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("encode public key: %v", err)
	}
	metaJSON, err := json.Marshal(newMetadata(PlatformOther, key.N.BitLen()))
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}

	fields := map[string]string{
		ns.privateKeyField(): EncodePrivateKey(key),
		ns.publicKeyField():  pubPEM,
		ns.mnemonicField():   phrase,
		ns.metadataField():   string(metaJSON),
	}
	for k, v := range fields {
		if err := store.Set(ctx, k, v); err != nil {
			t.Fatalf("seed store field %s: %v", k, err)
		}
	}
}

func recordingEvents(log *[]string) *GenerateEvents {
	return &GenerateEvents{
		OnSeedDerived:  func() { *log = append(*log, "seed") },
		OnPrimeFound:   func(found, of int) { *log = append(*log, fmt.Sprintf("prime %d/%d", found, of)) },
		OnKeyAssembled: func(int) { *log = append(*log, "assembled") },
		OnPersisted:    func() { *log = append(*log, "persisted") },
		OnComplete:     func() { *log = append(*log, "complete") },
	}
}
