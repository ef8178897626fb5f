package model

import "time"

// PendingRegistration はメール認証待ちの仮登録を表す。
// インメモリストアのみに存在するエフェメラルなデータで、
// 認証成功・期限切れ・試行回数超過・明示的な破棄のいずれかで消滅する。
// パスワードはハッシュ化済みの値のみを保持する。
type PendingRegistration struct {
	RegistrationID string

	// 申請されたプロフィール（パスワードはハッシュ済み）
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	PreferredName string
	DOB           time.Time
	Phone         string
	UnitNumber    string
	Street        string
	City          string
	Province      string
	PostalCode    string
	Country       string

	// 認証コードの状態。CodeIssuedAtは再送のたびにリセットされ、
	// 有効期限はこの時刻を起点に計算される。
	VerificationCode string
	CodeIssuedAt     time.Time
	Attempts         int
}
