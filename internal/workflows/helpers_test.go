package workflows

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/api/apitest"
	"github.com/PolarWolf314/cryptdrive/internal/codec"
	"github.com/PolarWolf314/cryptdrive/internal/configs"
	logger "github.com/PolarWolf314/cryptdrive/internal/logging"
	"github.com/PolarWolf314/cryptdrive/internal/secrets"

	"github.com/99designs/keyring"
)

var (
	testKDF = secrets.KDFParams{Algorithm: secrets.KDFPBKDF2, Iterations: 1000}
	quiet   = logger.Logger{Out: io.Discard, Err: io.Discard}

	bobOnce sync.Once
	bobKP   *secrets.KeyPair
)

const (
	ownerEmail    = "owner@example.com"
	ownerPassword = "correct horse"
)

// useTempSettings points the user settings at a temporary directory and
// clears the environment overrides.
func useTempSettings(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	old := *configs.UserCryptdriveSettings
	configs.UserCryptdriveSettings.ConfigDir = filepath.Join(tempDir, "config")
	configs.UserCryptdriveSettings.DataDir = filepath.Join(tempDir, "data")
	t.Cleanup(func() {
		*configs.UserCryptdriveSettings = old
	})

	t.Setenv(configs.EnvServerURL, "")
	t.Setenv(configs.EnvToken, "")
	t.Setenv(configs.EnvVaultPassphrase, "")
	return tempDir
}

// testConfig uses small keys, 1 KiB chunks and near-instant retries.
func testConfig() *configs.Config {
	config := configs.DefaultConfig()
	config.Keys.Bits = secrets.MinKeyBits
	config.Transfer.ChunkSize = 1024
	config.Transfer.Concurrency = 3
	config.Transfer.Simultaneous = 2
	config.Transfer.MaxRetries = 1
	config.Transfer.BaseDelay = configs.Duration(time.Millisecond)
	config.Transfer.MaxJitter = 0
	return config
}

type fixture struct {
	dir     string
	backend *apitest.Backend
	owner   *apitest.User
	vault   VaultOptions
	init    *InitResult
}

// newLocalFixture creates an account without a backend.
func newLocalFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir: useTempSettings(t),
		vault: VaultOptions{
			Passphrase: []byte("vault passphrase"),
			Ring:       keyring.NewArrayKeyring(nil),
			KDF:        testKDF,
		},
	}
	if err := configs.SaveConfig(testConfig()); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	result, err := Init(context.Background(), InitOptions{
		Email:    ownerEmail,
		Username: "owner",
		Password: []byte(ownerPassword),
		Vault:    f.vault,
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	f.init = result
	return f
}

// newFixture creates an account registered with a fake backend. Hooks, if
// given, are installed before the backend starts serving.
func newFixture(t *testing.T, hooks ...apitest.Hooks) *fixture {
	t.Helper()
	f := newLocalFixture(t)

	f.backend = apitest.NewBackend()
	if len(hooks) > 0 {
		f.backend.Hooks = hooks[0]
	}
	srv := apitest.NewServer(t, f.backend)
	f.owner = f.backend.AddUser(ownerEmail, "owner", f.init.Account.PublicKey)

	config := testConfig()
	config.Server.BaseURL = srv.URL
	config.Server.Token = f.owner.Token
	if err := configs.SaveConfig(config); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	return f
}

func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	s, err := OpenSession(context.Background(), SessionOptions{Vault: f.vault, Log: quiet})
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// addBob registers a second user and returns it with its key pair.
func (f *fixture) addBob(t *testing.T) (*apitest.User, *secrets.KeyPair) {
	t.Helper()
	bobOnce.Do(func() {
		bobKP, _ = secrets.GenerateKeyPair(secrets.MinKeyBits)
	})
	if bobKP == nil {
		t.Fatal("failed to generate key pair for bob")
	}
	pub, err := secrets.MarshalPublicKey(bobKP.Public)
	if err != nil {
		t.Fatalf("MarshalPublicKey failed: %v", err)
	}
	return f.backend.AddUser("bob@example.com", "bob", string(pub)), bobKP
}

// shareWith grants u the folder key, as if the owner had shared it before.
func (f *fixture) shareWith(t *testing.T, s *Session, folderID string, u *apitest.User, kp *secrets.KeyPair) {
	t.Helper()
	folder, err := s.Client.GetFolder(context.Background(), folderID)
	if err != nil {
		t.Fatalf("GetFolder failed: %v", err)
	}
	wrapped, err := codec.DecodeBase64(folder.EncryptedFolderKey)
	if err != nil {
		t.Fatalf("DecodeBase64 failed: %v", err)
	}
	raw, err := s.Keys.Unwrap(wrapped)
	if err != nil {
		t.Fatalf("Unwrap failed: %v", err)
	}
	forUser, err := secrets.WrapKey(kp.Public, raw)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	f.backend.ShareFolder(folderID, u, codec.EncodeBase64(forUser), "read")
}
