package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4" // SQLCipher driver
)

// SchemaVersion defines the current database schema version
const SchemaVersion = 1

//go:embed schema.sql
var schema string

// VaultDatabase is the encrypted SQLCipher vault. It implements vault.Store
// and vault.Authenticator for the local backend.
type VaultDatabase struct {
	dbPath     string
	connection *sql.DB
	isOpen     bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewVaultDatabase creates a new VaultDatabase instance
func NewVaultDatabase(dbPath string, logger *slog.Logger) *VaultDatabase {
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultDatabase{
		dbPath: dbPath,
		now:    time.Now,
		logger: logger.With("component", "database"),
	}
}

// NewVaultDatabaseWithDB wraps an already open connection, e.g. a mock
func NewVaultDatabaseWithDB(db *sql.DB, logger *slog.Logger) *VaultDatabase {
	vd := NewVaultDatabase("", logger)
	vd.connection = db
	vd.isOpen = true
	return vd
}

// SetClock replaces the clock used for timestamps
func (vd *VaultDatabase) SetClock(now func() time.Time) {
	vd.now = now
}

// Path returns the vault file path
func (vd *VaultDatabase) Path() string {
	return vd.dbPath
}

// Connect opens the encrypted vault with the given password, creating it if
// the file does not exist yet
func (vd *VaultDatabase) Connect(password string) error {
	if vd.isOpen {
		return nil
	}

	connStr := fmt.Sprintf("%s?_pragma_key=%s&_pragma_cipher_page_size=4096&_pragma_cipher_hmac_algorithm=HMAC_SHA512&_pragma_cipher_kdf_algorithm=PBKDF2_HMAC_SHA512&_pragma_cipher_kdf_iter=256000",
		vd.dbPath, url.QueryEscape(password))

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return storeError("connect", err)
	}
	// Keys and rekeys are per connection
	db.SetMaxOpenConns(1)

	// A wrong key only shows up on the first read
	if err := vd.testConnection(db); err != nil {
		db.Close()
		return err
	}

	vd.connection = db
	vd.isOpen = true

	if _, err := vd.connection.Exec(schema); err != nil {
		vd.Close()
		return storeError("initialize_schema", err)
	}

	vd.logger.Debug("vault opened", "path", vd.dbPath)
	return nil
}

func (vd *VaultDatabase) testConnection(db *sql.DB) error {
	var count int
	err := db.QueryRow("SELECT count(*) FROM sqlite_master").Scan(&count)
	if err != nil {
		if strings.Contains(err.Error(), "file is not a database") ||
			strings.Contains(err.Error(), "file is encrypted") {
			return ErrAuthenticationFailed
		}
		return storeError("test_connection", err)
	}
	return nil
}

// rekey re-encrypts the open vault with a new password
func (vd *VaultDatabase) rekey(newPassword string) error {
	if err := vd.ensureConnected(); err != nil {
		return err
	}

	quoted := strings.ReplaceAll(newPassword, "'", "''")
	if _, err := vd.connection.Exec(fmt.Sprintf("PRAGMA rekey = '%s'", quoted)); err != nil {
		return storeError("rekey", err)
	}
	return nil
}

// Close closes the database connection
func (vd *VaultDatabase) Close() error {
	if !vd.isOpen || vd.connection == nil {
		return nil
	}

	err := vd.connection.Close()
	vd.connection = nil
	vd.isOpen = false

	if err != nil {
		return storeError("close", err)
	}
	return nil
}

// IsConnected returns true if the database connection is active
func (vd *VaultDatabase) IsConnected() bool {
	return vd.isOpen && vd.connection != nil
}

func (vd *VaultDatabase) ensureConnected() error {
	if !vd.IsConnected() {
		return ErrDatabaseNotConnected
	}
	return nil
}
