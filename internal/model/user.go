// Package model はドメインモデルを定義する。
package model

import "time"

// User はストアの会員を表す。
// emailはサービス層で小文字に正規化してから保存する（大文字小文字を区別しない一意性）。
type User struct {
	ID           string
	Email        string
	PasswordHash string

	// プロフィール
	FirstName     string
	LastName      string
	PreferredName string
	DOB           time.Time
	Phone         string

	// 配送先住所（カナダ国内のみ）
	UnitNumber string
	Street     string
	City       string
	Province   string
	PostalCode string
	Country    string

	// Stripe連携。顧客レコードは遅延作成され、最大1回だけ紐付けられる。
	StripeCustomerID string

	// アカウント状態
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	LastLoginAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName は表示用のフルネームを返す。
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
