package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type (
	// Store is the durable record of users and their password digests.
	//
	// A single Store is meant to be shared by every request, sqlite
	// serializes writers on its own.
	Store struct {
		db *sql.DB
	}

	// Profile is everything about a user that can be shown to the user
	// itself. It never carries the password digest.
	Profile struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		CreatedAt time.Time `json:"createdAt"`
		Disabled  bool      `json:"disabled"`
	}

	// Credentials is only used to verify a password.
	Credentials struct {
		ID       string
		PassHash string
		Disabled bool
	}
)

func openStoreDatabase(ctx context.Context, file string) (*sql.DB, error) {
	if dir := filepath.Dir(file); dir != "" {
		err := os.MkdirAll(dir, 0700)
		if err != nil {
			return nil, fmt.Errorf("unable to create directory %v to store credentials, cause %w", dir, err)
		}
	}
	connstr := fmt.Sprintf("file:%v?_writable_schema=false&_journal=wal&_busy_timeout=5000&_foreign_keys=on&mode=rwc", file)
	conn, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v, cause %v", file, err)
	}
	err = conn.PingContext(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to ping credential store %v, cause %v", file, err)
	}
	return conn, nil
}

// Open loads (or creates) the credential store kept at file.
func Open(ctx context.Context, file string) (*Store, error) {
	conn, err := openStoreDatabase(ctx, file)
	if err != nil {
		return nil, err
	}
	s := &Store{db: conn}
	err = s.init(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to init credential store %v, cause %v", file, err)
	}
	err = s.CheckSchema(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NormalizeUsername returns the canonical form used for every write and
// lookup, so "Bob" and "bob" are the same account.
func NormalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	return cases.Fold().String(norm.NFKC.String(username))
}

func (s *Store) CreateUser(ctx context.Context, username string, passHash string) (Profile, error) {
	p := Profile{
		ID:        uuid.NewString(),
		Username:  NormalizeUsername(username),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx, `insert into users(id, username, pass_hash, created_at) values (?, ?, ?, ?)`,
		p.ID, p.Username, passHash, p.CreatedAt)
	if isUniqueViolation(err) {
		return Profile{}, UserExists{Username: p.Username}
	} else if err != nil {
		return Profile{}, fmt.Errorf("unable to create user, cause %w", err)
	}
	return p, nil
}

func (s *Store) LookupByID(ctx context.Context, id string) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `select id, username, created_at, disabled from users where id = ?`, id).
		Scan(&p.ID, &p.Username, &p.CreatedAt, &p.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, UserNotFound{Key: id}
	} else if err != nil {
		return Profile{}, fmt.Errorf("unable to lookup user by id, cause %w", err)
	}
	return p, nil
}

func (s *Store) LookupCredentials(ctx context.Context, username string) (Credentials, error) {
	username = NormalizeUsername(username)
	var c Credentials
	err := s.db.QueryRowContext(ctx, `select id, pass_hash, disabled from users where username = ?`, username).
		Scan(&c.ID, &c.PassHash, &c.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, UserNotFound{Key: username}
	} else if err != nil {
		return Credentials{}, fmt.Errorf("unable to lookup credentials, cause %w", err)
	}
	return c, nil
}

func (s *Store) LookupCredentialsByID(ctx context.Context, id string) (Credentials, error) {
	var c Credentials
	err := s.db.QueryRowContext(ctx, `select id, pass_hash, disabled from users where id = ?`, id).
		Scan(&c.ID, &c.PassHash, &c.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, UserNotFound{Key: id}
	} else if err != nil {
		return Credentials{}, fmt.Errorf("unable to lookup credentials, cause %w", err)
	}
	return c, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]Profile, error) {
	var out []Profile
	rows, err := s.db.QueryContext(ctx, `select id, username, created_at, disabled from users order by username asc`)
	if err != nil {
		return nil, fmt.Errorf("unable to list users, cause %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p Profile
		err = rows.Scan(&p.ID, &p.Username, &p.CreatedAt, &p.Disabled)
		if err != nil {
			return nil, fmt.Errorf("unable to scan user to output, cause %v", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePassword(ctx context.Context, id string, passHash string) error {
	res, err := s.db.ExecContext(ctx, `update users set pass_hash = ? where id = ?`, passHash, id)
	if err != nil {
		return fmt.Errorf("unable to update password, cause %w", err)
	}
	return expectOneRow(res, id)
}

func (s *Store) RenameUser(ctx context.Context, id string, username string) error {
	username = NormalizeUsername(username)
	res, err := s.db.ExecContext(ctx, `update users set username = ? where id = ?`, username, id)
	if isUniqueViolation(err) {
		return UserExists{Username: username}
	} else if err != nil {
		return fmt.Errorf("unable to rename user, cause %w", err)
	}
	return expectOneRow(res, id)
}

func (s *Store) SetDisabled(ctx context.Context, id string, disabled bool) error {
	res, err := s.db.ExecContext(ctx, `update users set disabled = ? where id = ?`, disabled, id)
	if err != nil {
		return fmt.Errorf("unable to change state of user, cause %w", err)
	}
	return expectOneRow(res, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = ?`, id)
	if err != nil {
		return fmt.Errorf("unable to delete user, cause %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to count affected rows, cause %w", err)
	}
	if n == 0 {
		return UserNotFound{Key: id}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrConstraint &&
		(serr.ExtendedCode == sqlite3.ErrConstraintUnique || serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func (s *Store) init(ctx context.Context) error {
	for _, cmd := range []string{
		`create table if not exists users(
			id text not null primary key,
			username text not null unique,
			pass_hash text not null,
			created_at datetime default current_timestamp,
			disabled integer not null default 0
		)`,
	} {
		_, err := s.db.ExecContext(ctx, cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
