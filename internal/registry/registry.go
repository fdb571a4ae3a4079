// Package registry implements the bearer-token registry: issuance,
// verification, revocation, and listing, backed by a single JSON file.
//
// Trust model: a token is valid because it is present in the registry,
// not because its signature checks out. The HMAC signature minted at
// issuance is never re-derived at verify time, so revocation takes
// effect immediately but rotating the secret does NOT invalidate
// outstanding tokens.
//
// Concurrency: writes serialize behind a mutex and persist with
// temp-file-plus-rename, so readers never observe a half-written file.
// The in-process cache is invalidated on every write. Across processes
// the file is last-writer-wins; the file watcher narrows that window
// but concurrent multi-process writes can still drop one another.
package registry

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tracehook/pkg/models"
)

// signatureHexLen is the retained prefix of the hex-encoded HMAC-SHA256
// digest (first 8 bytes).
const signatureHexLen = 16

// registryFile is the persisted document shape.
type registryFile struct {
	Tokens map[string]models.TokenRecord `json:"tokens"`
}

// Registry owns the credential lifecycle for reporting clients.
type Registry struct {
	secret string
	path   string

	mu     sync.RWMutex
	tokens map[string]models.TokenRecord
	loaded bool
}

// New returns a Registry over the JSON file at path. The file is read
// lazily; a missing or corrupt file behaves as an empty registry.
func New(secretKey, path string) *Registry {
	return &Registry{secret: secretKey, path: path}
}

// Path returns the backing file path.
func (r *Registry) Path() string {
	return r.path
}

// Generate issues a token for userID and persists it immediately.
// Scopes default to usage:write. The token is user:unix:sig where sig
// is the first sixteen hex characters of HMAC-SHA256(secret, user:unix).
func (r *Registry) Generate(userID string, scopes []string) (string, error) {
	if len(scopes) == 0 {
		scopes = append([]string(nil), models.DefaultScopes...)
	}
	now := time.Now()
	token := r.mint(userID, now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()
	r.tokens[token] = models.TokenRecord{
		UserID:    userID,
		Scopes:    scopes,
		CreatedAt: now,
	}
	err := r.persistLocked()
	r.invalidateLocked()
	if err != nil {
		return "", err
	}

	log.Info().Str("user_id", userID).Strs("scopes", scopes).Msg("Issued token")
	return token, nil
}

// Verify looks the token up verbatim. It returns nil when the token is
// unknown, revoked, or expired; a grant with the stored user and scopes
// otherwise. Lookup misses are not errors.
func (r *Registry) Verify(token string) *models.AccessGrant {
	rec, ok := r.lookup(token)
	if !ok || rec.Revoked || rec.Expired(time.Now()) {
		return nil
	}
	return &models.AccessGrant{UserID: rec.UserID, Scopes: rec.Scopes}
}

// Revoke marks a token revoked and re-stamps revoked_at, returning true
// for any known token (already-revoked included) and false for unknown
// ones. Unknown tokens leave the registry file untouched.
func (r *Registry) Revoke(token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()

	rec, ok := r.tokens[token]
	if !ok {
		return false, nil
	}
	now := time.Now()
	rec.Revoked = true
	rec.RevokedAt = &now
	r.tokens[token] = rec

	err := r.persistLocked()
	r.invalidateLocked()
	if err != nil {
		return false, err
	}

	log.Info().Str("user_id", rec.UserID).Msg("Revoked token")
	return true, nil
}

// List returns public metadata for stored tokens, excluding revoked
// entries unless includeRevoked is set. Order follows storage order and
// is not guaranteed chronological.
func (r *Registry) List(includeRevoked bool) []models.TokenInfo {
	r.mu.Lock()
	r.loadLocked()
	snapshot := make(map[string]models.TokenRecord, len(r.tokens))
	for token, rec := range r.tokens {
		snapshot[token] = rec
	}
	r.mu.Unlock()

	infos := make([]models.TokenInfo, 0, len(snapshot))
	for token, rec := range snapshot {
		if rec.Revoked && !includeRevoked {
			continue
		}
		infos = append(infos, models.TokenInfo{
			Token:     token,
			UserID:    rec.UserID,
			Scopes:    rec.Scopes,
			Revoked:   rec.Revoked,
			CreatedAt: rec.CreatedAt,
		})
	}
	return infos
}

// Get returns the stored record for one token, or (zero, false).
func (r *Registry) Get(token string) (models.TokenRecord, bool) {
	return r.lookup(token)
}

// Invalidate drops the in-process cache so the next read reloads the
// file. The file watcher calls this when the registry file changes
// underneath a running process.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

// mint builds the token string for userID at the given instant.
func (r *Registry) mint(userID string, now time.Time) string {
	payload := userID + ":" + strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write([]byte(payload))
	sig := hex.EncodeToString(mac.Sum(nil))[:signatureHexLen]
	return payload + ":" + sig
}

func (r *Registry) lookup(token string) (models.TokenRecord, bool) {
	r.mu.RLock()
	if r.loaded {
		rec, ok := r.tokens[token]
		r.mu.RUnlock()
		return rec, ok
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadLocked()
	rec, ok := r.tokens[token]
	return rec, ok
}

// loadLocked populates the cache from disk if it is cold. Corrupt or
// missing files yield an empty registry, never an error.
func (r *Registry) loadLocked() {
	if r.loaded {
		return
	}
	r.tokens = make(map[string]models.TokenRecord)
	r.loaded = true

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", r.path).Msg("Failed to read token registry, treating as empty")
		}
		return
	}
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		log.Warn().Err(err).Str("path", r.path).Msg("Corrupt token registry, treating as empty")
		return
	}
	if file.Tokens != nil {
		r.tokens = file.Tokens
	}
}

// persistLocked writes the full registry state. A failed write leaves
// the previous file intact.
func (r *Registry) persistLocked() error {
	data, err := json.MarshalIndent(registryFile{Tokens: r.tokens}, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode token registry, keeping previous file")
		return fmt.Errorf("encode token registry: %w", err)
	}
	if err := atomicWrite(r.path, append(data, '\n'), 0o600); err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("Failed to write token registry, keeping previous file")
		return fmt.Errorf("write token registry: %w", err)
	}
	return nil
}

func (r *Registry) invalidateLocked() {
	r.tokens = nil
	r.loaded = false
}

// atomicWrite persists data via a temp file in the same directory,
// fsync, then rename, so a crash leaves either the old or the new
// complete file. The parent directory is created on first write.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}
