// ABOUTME: Key lifecycle manager: generate, recover, load, persist, clear.
// ABOUTME: Owns the in-memory identity and delegates persistence to the injected Storage.
package vault

import (
	"context"
	"crypto/rsa"
	"encoding/json"

	"golang.org/x/sync/errgroup"
)

// State describes the manager lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateGenerating    State = "generating"
	StateReady         State = "ready"
)

// Manager owns one key bundle: the recovery phrase, the RSA key pair derived
// from it, and its metadata. A Manager is single-owner: it performs no
// internal locking, and concurrent mutation from multiple goroutines is not
// supported.
type Manager struct {
	store Storage
	cfg   Config

	state    State
	key      *rsa.PrivateKey
	mnemonic string
	meta     Metadata
}

// NewManager returns an uninitialized manager over store. Zero-value Config
// fields fall back to their defaults.
func NewManager(store Storage, cfg Config) *Manager {
	return &Manager{store: store, cfg: cfg, state: StateUninitialized}
}

// State reports the lifecycle state.
func (m *Manager) State() State { return m.state }

// PrivateKey exposes the private key, or nil before the manager is Ready.
// It is the only way key material leaves the manager.
func (m *Manager) PrivateKey() *rsa.PrivateKey { return m.key }

// PublicKey returns the public half of the key pair, or nil before Ready.
func (m *Manager) PublicKey() *rsa.PublicKey {
	if m.key == nil {
		return nil
	}
	return &m.key.PublicKey
}

// Mnemonic returns the recovery phrase, or "" before Ready.
func (m *Manager) Mnemonic() string { return m.mnemonic }

// Metadata returns the bundle metadata, zero before Ready.
func (m *Manager) Metadata() Metadata { return m.meta }

// Generate creates a fresh identity: a new recovery phrase, the key pair
// derived from it, and a persisted bundle. It returns the phrase, the only
// way the user can ever rebuild the key pair on another device, so callers
// must surface it for safekeeping. On any failure the manager rolls back to
// Uninitialized; fields already written to storage may remain and are
// overwritten by the next successful Generate or Recover.
func (m *Manager) Generate(ctx context.Context, events ...*GenerateEvents) (string, error) {
	var ev *GenerateEvents
	if len(events) > 0 {
		ev = events[0]
	}
	m.state = StateGenerating
	phrase, err := GenerateMnemonic(m.cfg.rand())
	if err != nil {
		m.reset()
		return "", err
	}
	if err := m.install(ctx, phrase, ev); err != nil {
		return "", err
	}
	return phrase, nil
}

// Recover rebuilds the identity from an existing phrase and persists it.
// Derivation is deterministic, so with the same configured key size the
// rebuilt key pair is identical to the one the phrase originally produced.
func (m *Manager) Recover(ctx context.Context, phrase string, events ...*GenerateEvents) error {
	if !ValidateMnemonic(phrase) {
		return ErrInvalidMnemonic
	}
	var ev *GenerateEvents
	if len(events) > 0 {
		ev = events[0]
	}
	return m.install(ctx, phrase, ev)
}

// install derives the key pair for phrase, persists the bundle, and moves
// the manager to Ready.
func (m *Manager) install(ctx context.Context, phrase string, ev *GenerateEvents) error {
	m.state = StateGenerating
	seed := DeriveSeed(phrase, "")
	if ev != nil && ev.OnSeedDerived != nil {
		ev.OnSeedDerived()
	}
	key, err := GenerateKeyPair(seed, m.cfg.keySize(), ev)
	if err != nil {
		m.reset()
		return err
	}
	m.key = key
	m.mnemonic = phrase
	m.meta = newMetadata(m.cfg.Platform, key.N.BitLen())
	m.state = StateReady
	if err := m.Save(ctx); err != nil {
		m.reset()
		return err
	}
	if ev != nil && ev.OnPersisted != nil {
		ev.OnPersisted()
	}
	if ev != nil && ev.OnComplete != nil {
		ev.OnComplete()
	}
	return nil
}

func (m *Manager) reset() {
	m.state = StateUninitialized
	m.key = nil
	m.mnemonic = ""
	m.meta = Metadata{}
}

// Save persists the current bundle: both keys as PEM, the phrase, and the
// metadata as JSON. The four fields are written concurrently and awaited
// jointly. Persistence is not atomic: on failure some fields may be written
// and some not, which Load then treats the same as an absent bundle.
func (m *Manager) Save(ctx context.Context) error {
	if !m.ready() {
		return ErrNotReady
	}
	pubPEM, err := EncodePublicKey(m.PublicKey())
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(m.meta)
	if err != nil {
		return err
	}
	privPEM := EncodePrivateKey(m.key)

	ns := m.cfg.namespace()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.store.Set(gctx, ns.privateKeyField(), privPEM) })
	g.Go(func() error { return m.store.Set(gctx, ns.publicKeyField(), pubPEM) })
	g.Go(func() error { return m.store.Set(gctx, ns.mnemonicField(), m.mnemonic) })
	g.Go(func() error { return m.store.Set(gctx, ns.metadataField(), string(metaJSON)) })
	return g.Wait()
}

// Load restores a previously persisted bundle and reports whether the
// manager is Ready afterwards. False covers an absent bundle, unreadable
// storage, and invalid key material alike, and leaves the manager
// unchanged. Bundles persisted before metadata existed load with
// synthesized metadata.
func (m *Manager) Load(ctx context.Context) bool {
	ns := m.cfg.namespace()
	var privPEM, pubPEM, phrase, metaJSON string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := m.store.Get(gctx, ns.privateKeyField())
		privPEM = v
		return err
	})
	g.Go(func() error {
		v, err := m.store.Get(gctx, ns.publicKeyField())
		pubPEM = v
		return err
	})
	g.Go(func() error {
		v, err := m.store.Get(gctx, ns.mnemonicField())
		phrase = v
		return err
	})
	g.Go(func() error {
		// Metadata is optional; a missing or unreadable record must not
		// block bundles from before metadata was recorded.
		v, err := m.store.Get(gctx, ns.metadataField())
		if err == nil {
			metaJSON = v
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return false
	}

	key, err := DecodePrivateKey(privPEM)
	if err != nil {
		return false
	}
	pub, err := DecodePublicKey(pubPEM)
	if err != nil {
		return false
	}
	if pub.N.Cmp(key.N) != 0 || pub.E != key.E {
		return false
	}

	var meta Metadata
	if metaJSON == "" || json.Unmarshal([]byte(metaJSON), &meta) != nil {
		meta = legacyMetadata(m.cfg.Platform, key.N.BitLen())
	}

	m.key = key
	m.mnemonic = phrase
	m.meta = meta
	m.state = StateReady
	return true
}

// Clear deletes the persisted bundle and resets the manager. The in-memory
// identity is discarded even when a delete fails, so a returned error only
// means storage may still hold fields.
func (m *Manager) Clear(ctx context.Context) error {
	ns := m.cfg.namespace()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.store.Delete(gctx, ns.privateKeyField()) })
	g.Go(func() error { return m.store.Delete(gctx, ns.publicKeyField()) })
	g.Go(func() error { return m.store.Delete(gctx, ns.mnemonicField()) })
	g.Go(func() error { return m.store.Delete(gctx, ns.metadataField()) })
	err := g.Wait()
	m.reset()
	return err
}

// Existence reports which bundle fields are present in storage.
type Existence struct {
	PrivateKey bool
	PublicKey  bool
	Mnemonic   bool
	Metadata   bool
}

// Complete reports whether every field Load requires is present.
func (e Existence) Complete() bool {
	return e.PrivateKey && e.PublicKey && e.Mnemonic
}

// CheckExistence asks storage about each bundle field without touching the
// manager state. An unreadable backend reports absent, matching Load.
func (m *Manager) CheckExistence(ctx context.Context) Existence {
	ns := m.cfg.namespace()
	return Existence{
		PrivateKey: m.present(ctx, ns.privateKeyField()),
		PublicKey:  m.present(ctx, ns.publicKeyField()),
		Mnemonic:   m.present(ctx, ns.mnemonicField()),
		Metadata:   m.present(ctx, ns.metadataField()),
	}
}

func (m *Manager) present(ctx context.Context, key string) bool {
	_, err := m.store.Get(ctx, key)
	return err == nil
}

func (m *Manager) ready() bool {
	return m.state == StateReady && m.key != nil
}

// EncryptString encrypts s for this manager's public key.
func (m *Manager) EncryptString(s string) (string, error) {
	if !m.ready() {
		return "", ErrNotReady
	}
	return EncryptString(m.cfg.rand(), m.PublicKey(), s)
}

// DecryptString decrypts a text envelope with this manager's private key.
func (m *Manager) DecryptString(in string) (string, error) {
	if !m.ready() {
		return "", ErrNotReady
	}
	return DecryptString(m.key, in)
}

// EncryptForStorage encrypts data into the binary local-storage frame.
func (m *Manager) EncryptForStorage(data []byte) ([]byte, error) {
	if !m.ready() {
		return nil, ErrNotReady
	}
	return EncryptForStorage(m.cfg.rand(), m.PublicKey(), data)
}

// DecryptFromStorage decrypts a binary local-storage frame.
func (m *Manager) DecryptFromStorage(frame []byte) ([]byte, error) {
	if !m.ready() {
		return nil, ErrNotReady
	}
	return DecryptFromStorage(m.key, frame)
}

// PrepareForTransmission encrypts data as a transmission payload.
func (m *Manager) PrepareForTransmission(data []byte) (Transmission, error) {
	if !m.ready() {
		return Transmission{}, ErrNotReady
	}
	return PrepareForTransmission(m.cfg.rand(), m.PublicKey(), data)
}

// DecryptTransmission decrypts a transmission payload.
func (m *Manager) DecryptTransmission(t Transmission) ([]byte, error) {
	if !m.ready() {
		return nil, ErrNotReady
	}
	return DecryptTransmission(m.key, t)
}
