package console

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationDir は migrationFiles 内のマイグレーションディレクトリ。
const migrationDir = "migrations"

// errOperatorNotFound はオペレーターが登録されていないことを表す。
var errOperatorNotFound = errors.New("オペレーターが見つかりません")

// 認証元。
const (
	// sourceUpstream はexecutionサービスで認証されたオペレーター。
	sourceUpstream = "upstream"
	// sourceLocal は設定された管理者資格情報で認証されたオペレーター。
	sourceLocal = "local"
)

// operator はログインしたことのあるオペレーター。
type operator struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// operatorStore はoperatorsテーブルへのアクセスを提供する。
type operatorStore struct {
	db *sql.DB
}

// recordLogin はログインしたオペレーターを登録し、登録済みなら最終ログイン日時を更新する。
func (s *operatorStore) recordLogin(ctx context.Context, op operator) error {
	at := op.LastLoginAt.UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (id, username, email, source, created_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			source = excluded.source,
			last_login_at = excluded.last_login_at
	`, op.ID, op.Username, op.Email, op.Source, at, at)
	if err != nil {
		return fmt.Errorf("オペレーターの登録に失敗: id=%s: %w", op.ID, err)
	}
	return nil
}

// get はIDでオペレーターを取得する。
func (s *operatorStore) get(ctx context.Context, id string) (operator, error) {
	var (
		op                   operator
		createdAt, lastLogin string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, source, created_at, last_login_at
		FROM operators WHERE id = ?
	`, id).Scan(&op.ID, &op.Username, &op.Email, &op.Source, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return operator{}, errOperatorNotFound
	}
	if err != nil {
		return operator{}, fmt.Errorf("オペレーターの取得に失敗: id=%s: %w", id, err)
	}

	if op.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return operator{}, fmt.Errorf("created_atの解析に失敗: %w", err)
	}
	if op.LastLoginAt, err = time.Parse(time.RFC3339Nano, lastLogin); err != nil {
		return operator{}, fmt.Errorf("last_login_atの解析に失敗: %w", err)
	}
	return op, nil
}
