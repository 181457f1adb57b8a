// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// Role はユーザーのロールを表す。
// トークンのクレームおよびストアには名前（"ADMIN"/"MEMBER"）で保存する。
type Role string

const (
	// RoleAdmin は管理者ロール。管理操作（対象外）でのみ付与される。
	RoleAdmin Role = "ADMIN"
	// RoleMember は一般ユーザーロール。新規作成時のデフォルト。
	RoleMember Role = "MEMBER"
)

// ParseRole は文字列をRoleに変換する。大文字小文字は区別しない。
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// Valid はロールが既知の値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// String はロール名を返す。
func (r Role) String() string {
	return string(r)
}

// User はプロビジョニング済みのアカウントを表す。
// ExternalIDは外部IdPのsubjectであり、作成後は変更されない。
type User struct {
	ID         string
	ExternalID string
	Role       Role
	Email      string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// View はサロゲートキーを含まない読み取り用の射影を返す。
func (u *User) View() *UserView {
	return &UserView{
		ID:    u.ExternalID,
		Role:  u.Role.String(),
		Email: u.Email,
		Name:  u.Name,
	}
}

// UserView はGET /userで返すユーザー情報。
// idには外部IDを入れる。
type UserView struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
