package registry

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/tracehook/pkg/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return New("test-secret", filepath.Join(t.TempDir(), "tokens.json"))
}

// TestGenerate_TokenFormat tests that issued tokens follow
// user:unix:signature with a sixteen-char hex signature.
func TestGenerate_TokenFormat(t *testing.T) {
	reg := newTestRegistry(t)

	token, err := reg.Generate("alice", nil)
	require.NoError(t, err)

	parts := strings.Split(token, ":")
	require.Len(t, parts, 3)
	assert.Equal(t, "alice", parts[0])
	assert.Regexp(t, regexp.MustCompile(`^\d+$`), parts[1])
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), parts[2])

	// The signature must be the truncated HMAC-SHA256 over user:unix.
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(parts[0] + ":" + parts[1]))
	want := hex.EncodeToString(mac.Sum(nil))[:16]
	assert.Equal(t, want, parts[2])
}

// TestGenerate_Scopes tests scope defaulting and explicit scopes.
func TestGenerate_Scopes(t *testing.T) {
	reg := newTestRegistry(t)

	token, err := reg.Generate("alice", nil)
	require.NoError(t, err)
	grant := reg.Verify(token)
	require.NotNil(t, grant)
	assert.Equal(t, []string{"usage:write"}, grant.Scopes)

	token, err = reg.Generate("bob", []string{"usage:write", "admin"})
	require.NoError(t, err)
	grant = reg.Verify(token)
	require.NotNil(t, grant)
	assert.Equal(t, []string{"usage:write", "admin"}, grant.Scopes)
	assert.True(t, grant.HasScope("admin"))
	assert.False(t, grant.HasScope("usage:read"))
}

// TestVerify_RoundTrip tests that a freshly issued token verifies to a
// grant carrying the stored identity.
func TestVerify_RoundTrip(t *testing.T) {
	reg := newTestRegistry(t)

	token, err := reg.Generate("alice", nil)
	require.NoError(t, err)

	grant := reg.Verify(token)
	require.NotNil(t, grant)
	assert.Equal(t, "alice", grant.UserID)
}

// TestVerify_Unknown tests that unknown tokens yield no grant.
func TestVerify_Unknown(t *testing.T) {
	reg := newTestRegistry(t)
	assert.Nil(t, reg.Verify("alice:1700000000:deadbeefdeadbeef"))
}

// TestVerify_Revoked tests that revoked tokens stop verifying.
func TestVerify_Revoked(t *testing.T) {
	reg := newTestRegistry(t)

	token, err := reg.Generate("alice", nil)
	require.NoError(t, err)

	revoked, err := reg.Revoke(token)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Nil(t, reg.Verify(token))
}

// TestVerify_Expired tests that records carrying a past expires_at are
// rejected while future ones still verify.
func TestVerify_Expired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	file := registryFile{Tokens: map[string]models.TokenRecord{
		"alice:1700000000:aaaaaaaaaaaaaaaa": {
			UserID:    "alice",
			Scopes:    []string{"usage:write"},
			CreatedAt: past.Add(-time.Hour),
			ExpiresAt: &past,
		},
		"bob:1700000000:bbbbbbbbbbbbbbbb": {
			UserID:    "bob",
			Scopes:    []string{"usage:write"},
			CreatedAt: past,
			ExpiresAt: &future,
		},
	}}
	data, err := json.Marshal(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	reg := New("test-secret", path)
	assert.Nil(t, reg.Verify("alice:1700000000:aaaaaaaaaaaaaaaa"))
	grant := reg.Verify("bob:1700000000:bbbbbbbbbbbbbbbb")
	require.NotNil(t, grant)
	assert.Equal(t, "bob", grant.UserID)
}

// TestRevoke_Unknown tests that revoking an unknown token reports false
// and leaves the registry file byte-identical.
func TestRevoke_Unknown(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Generate("alice", nil)
	require.NoError(t, err)

	before, err := os.ReadFile(reg.Path())
	require.NoError(t, err)

	revoked, err := reg.Revoke("mallory:1700000000:0000000000000000")
	require.NoError(t, err)
	assert.False(t, revoked)

	after, err := os.ReadFile(reg.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// TestRevoke_AlreadyRevoked tests that revoking twice still reports
// true and keeps the record revoked.
func TestRevoke_AlreadyRevoked(t *testing.T) {
	reg := newTestRegistry(t)

	token, err := reg.Generate("alice", nil)
	require.NoError(t, err)

	revoked, err := reg.Revoke(token)
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = reg.Revoke(token)
	require.NoError(t, err)
	assert.True(t, revoked)

	rec, ok := reg.Get(token)
	require.True(t, ok)
	assert.True(t, rec.Revoked)
	assert.NotNil(t, rec.RevokedAt)
}

// TestList tests revoked filtering and the returned metadata.
func TestList(t *testing.T) {
	reg := newTestRegistry(t)

	aliceToken, err := reg.Generate("alice", nil)
	require.NoError(t, err)
	bobToken, err := reg.Generate("bob", nil)
	require.NoError(t, err)
	carolToken, err := reg.Generate("carol", nil)
	require.NoError(t, err)

	_, err = reg.Revoke(bobToken)
	require.NoError(t, err)

	active := reg.List(false)
	require.Len(t, active, 2)
	users := []string{active[0].UserID, active[1].UserID}
	assert.ElementsMatch(t, []string{"alice", "carol"}, users)
	for _, info := range active {
		assert.False(t, info.Revoked)
		assert.False(t, info.CreatedAt.IsZero())
	}

	all := reg.List(true)
	require.Len(t, all, 3)
	tokens := make([]string, 0, len(all))
	for _, info := range all {
		tokens = append(tokens, info.Token)
	}
	assert.ElementsMatch(t, []string{aliceToken, bobToken, carolToken}, tokens)
}

// TestLoad_CorruptFile tests that a corrupt registry behaves as empty
// and is replaced wholesale by the next write.
func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	reg := New("test-secret", path)
	assert.Nil(t, reg.Verify("alice:1700000000:aaaaaaaaaaaaaaaa"))
	assert.Empty(t, reg.List(true))

	token, err := reg.Generate("alice", nil)
	require.NoError(t, err)
	assert.NotNil(t, reg.Verify(token))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var file registryFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Len(t, file.Tokens, 1)
}

// TestLoad_MissingFile tests that a missing registry behaves as empty.
func TestLoad_MissingFile(t *testing.T) {
	reg := New("test-secret", filepath.Join(t.TempDir(), "nope", "tokens.json"))
	assert.Nil(t, reg.Verify("alice:1700000000:aaaaaaaaaaaaaaaa"))
	assert.Empty(t, reg.List(true))
}

// TestPersistence tests that a second instance over the same file sees
// tokens issued by the first.
func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	first := New("test-secret", path)
	token, err := first.Generate("alice", nil)
	require.NoError(t, err)

	second := New("test-secret", path)
	grant := second.Verify(token)
	require.NotNil(t, grant)
	assert.Equal(t, "alice", grant.UserID)
}

// TestInvalidate tests that dropping the cache picks up changes written
// by another instance.
func TestInvalidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	first := New("test-secret", path)
	token, err := first.Generate("alice", nil)
	require.NoError(t, err)
	require.NotNil(t, first.Verify(token))

	second := New("test-secret", path)
	revoked, err := second.Revoke(token)
	require.NoError(t, err)
	require.True(t, revoked)

	// The first instance still serves its warm cache.
	assert.NotNil(t, first.Verify(token))

	first.Invalidate()
	assert.Nil(t, first.Verify(token))
}

// TestGenerate_CreatesParentDir tests that the first write creates the
// registry's parent directories.
func TestGenerate_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "tokens.json")
	reg := New("test-secret", path)

	_, err := reg.Generate("alice", nil)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
