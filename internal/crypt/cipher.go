// Package crypt implements the optional at-rest page encryption feature
// that the reference engine's Superblock reserves a FeatureEncryption flag
// bit for but never turns on (internal/storage/pager/superblock.go). It
// wraps page bytes beneath the Buffer Pool Manager via the disk.Cipher hook,
// invisible to every layer above.
package crypt

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/quill-run/minidb/internal/disk"
)

const (
	saltSize  = 16
	nonceSize = chacha20poly1305.NonceSize // 12
	tagSize   = chacha20poly1305.Overhead  // 16
)

// Manager implements disk.Cipher, encrypting each page with ChaCha20-
// Poly1305 under a key derived from a passphrase via scrypt. Because the
// Manager guarantees same-size ciphertext (disk.Cipher's contract), the
// AEAD tag and per-page nonce counter are kept out of band in a sidecar
// file rather than appended to the page itself — the data file's physical
// layout is unaffected by whether encryption is enabled.
type Manager struct {
	mu          sync.Mutex
	aead        cipher.AEAD
	sidecarPath string
	salt        [saltSize]byte
	// counters/tags is keyed by page id; counter increments on every
	// WritePage so the same (key, page) pair never reuses a nonce.
	counters map[disk.PageID]uint64
	tags     map[disk.PageID][tagSize]byte
}

// Open derives the encryption key from the passphrase at passphraseFile and
// loads (or initializes) the nonce/tag ledger at sidecarPath.
func Open(passphraseFile, sidecarPath string) (*Manager, error) {
	passphrase, err := os.ReadFile(passphraseFile)
	if err != nil {
		return nil, fmt.Errorf("crypt: read passphrase file: %w", err)
	}
	m := &Manager{
		sidecarPath: sidecarPath,
		counters:    make(map[disk.PageID]uint64),
		tags:        make(map[disk.PageID][tagSize]byte),
	}

	if data, err := os.ReadFile(sidecarPath); err == nil {
		if err := m.decodeSidecar(data); err != nil {
			return nil, fmt.Errorf("crypt: load sidecar: %w", err)
		}
	} else if os.IsNotExist(err) {
		if _, err := rand.Read(m.salt[:]); err != nil {
			return nil, fmt.Errorf("crypt: generate salt: %w", err)
		}
	} else {
		return nil, fmt.Errorf("crypt: read sidecar: %w", err)
	}

	key, err := scrypt.Key(passphrase, m.salt[:], 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("crypt: derive key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("crypt: init aead: %w", err)
	}
	m.aead = aead
	return m, nil
}

func nonceFor(id disk.PageID, counter uint64) []byte {
	var nonce [nonceSize]byte
	binary.LittleEndian.PutUint32(nonce[:4], uint32(int32(id)))
	binary.LittleEndian.PutUint64(nonce[4:], counter)
	return nonce[:]
}

// Encrypt implements disk.Cipher. It returns ciphertext the same length as
// plaintext; the AEAD tag is stashed in the in-memory ledger, not appended.
func (m *Manager) Encrypt(id disk.PageID, plaintext []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counter := m.counters[id] + 1
	m.counters[id] = counter

	sealed := m.aead.Seal(nil, nonceFor(id, counter), plaintext, nil)
	ciphertext := sealed[:len(plaintext)]
	var tag [tagSize]byte
	copy(tag[:], sealed[len(plaintext):])
	m.tags[id] = tag
	return ciphertext, nil
}

// Decrypt implements disk.Cipher, reattaching the out-of-band tag before
// opening. A page never written under this cipher (no ledger entry) is
// returned unchanged, matching the Disk Manager's zero-fill-on-first-read
// behavior for brand-new pages.
func (m *Manager) Decrypt(id disk.PageID, ciphertext []byte) ([]byte, error) {
	m.mu.Lock()
	counter, known := m.counters[id]
	tag := m.tags[id]
	m.mu.Unlock()
	if !known {
		return ciphertext, nil
	}
	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag[:]...)
	plaintext, err := m.aead.Open(nil, nonceFor(id, counter), sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypt: authentication failed for page %d: %w", id, err)
	}
	return plaintext, nil
}

// Flush persists the nonce-counter/tag ledger and salt to the sidecar file;
// called from engine.Engine.Close after the buffer pool has shut down. The
// checkpoint scheduler does not call it.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return os.WriteFile(m.sidecarPath, m.encodeSidecar(), 0600)
}

func (m *Manager) encodeSidecar() []byte {
	buf := make([]byte, 0, saltSize+4+len(m.counters)*(4+8+tagSize))
	buf = append(buf, m.salt[:]...)
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(m.counters)))
	buf = append(buf, countBuf[:]...)
	for id, counter := range m.counters {
		var rec [4 + 8 + tagSize]byte
		binary.LittleEndian.PutUint32(rec[0:4], uint32(int32(id)))
		binary.LittleEndian.PutUint64(rec[4:12], counter)
		tag := m.tags[id]
		copy(rec[12:], tag[:])
		buf = append(buf, rec[:]...)
	}
	return buf
}

func (m *Manager) decodeSidecar(data []byte) error {
	if len(data) < saltSize+4 {
		return fmt.Errorf("sidecar truncated")
	}
	copy(m.salt[:], data[:saltSize])
	off := saltSize
	count := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	recSize := 4 + 8 + tagSize
	for i := 0; i < count; i++ {
		if off+recSize > len(data) {
			return fmt.Errorf("sidecar record %d truncated", i)
		}
		id := disk.PageID(int32(binary.LittleEndian.Uint32(data[off:])))
		counter := binary.LittleEndian.Uint64(data[off+4:])
		var tag [tagSize]byte
		copy(tag[:], data[off+12:off+recSize])
		m.counters[id] = counter
		m.tags[id] = tag
		off += recSize
	}
	return nil
}
