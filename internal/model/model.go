// Package model содержит доменные сущности сервиса программы лояльности.
package model

import "time"

// User представляет зарегистрированного участника программы лояльности.
type User struct {
	ID           int64
	PhoneNumber  string
	Name         string
	Email        string
	PasswordHash []byte
	DateOfBirth  time.Time
	Gender       *string
	IDCard       string
	CurrentPoin  int64
	MembershipID int64
	IsDeleted    bool
	CreatedAt    time.Time
}

// NewUser содержит данные для создания нового участника.
type NewUser struct {
	PhoneNumber  string
	Name         string
	Email        string
	PasswordHash []byte
	DateOfBirth  time.Time
	IDCard       string
	CurrentPoin  int64
	MembershipID int64
}

// Membership описывает уровень членства и его привилегии.
type Membership struct {
	ID          int64
	Name        string
	Description string
}

// UserProfile объединяет данные участника с его уровнем членства.
type UserProfile struct {
	User
	MembershipName        string
	MembershipDescription string
}

// CatalogVoucher описывает ваучер каталога вместе с его типом.
type CatalogVoucher struct {
	ID       int64  `json:"voucher_code"`
	TypeID   int64  `json:"voucher_type_id"`
	Name     string `json:"name"`
	Value    int64  `json:"value"`
	Price    int64  `json:"voucher_price"`
	TypeName string `json:"voucher_type"`
}

// UserVoucher описывает ваучер, выданный конкретному участнику.
type UserVoucher struct {
	CatalogVoucher
	ExpiredAt time.Time `json:"expired_at"`
}

// VoucherGroupStatus задаёт статус группы ваучеров пользователя.
type VoucherGroupStatus string

const (
	VoucherStatusActive  VoucherGroupStatus = "active"
	VoucherStatusExpired VoucherGroupStatus = "expired"
)

// VoucherGroup содержит ваучеры пользователя, сгруппированные по статусу.
type VoucherGroup struct {
	Status VoucherGroupStatus `json:"status"`
	Data   []UserVoucher      `json:"data"`
}

// TransactionRecord представляет одну строку сводной истории операций
// участника: покупка, начисление и списание баллов вместе с данными
// магазина и ваучера. Поля-указатели заполняются только при наличии
// соответствующей части LEFT JOIN.
type TransactionRecord struct {
	PhoneNumber     string     `json:"phone_number"`
	Name            string     `json:"name"`
	CurrentPoin     int64      `json:"current_poin"`
	TransactionDate *time.Time `json:"transaction_date"`
	InvoiceNumber   *string    `json:"invoice_number"`
	StoreName       *string    `json:"store_name"`
	CityName        *string    `json:"city_name"`
	DistrictName    *string    `json:"district_name"`
	PoinAmount      *int64     `json:"poin_amount"`
	InvoiceRedeem   *string    `json:"invoice_redeem"`
	RedeemedPoin    *int64     `json:"redeemed_poin"`
	ProductName     *string    `json:"product_name"`
	Quantity        *int64     `json:"quantity"`
	ProductPrice    *int64     `json:"product_price"`
	VoucherName     *string    `json:"voucher_name"`
	VoucherValue    *int64     `json:"voucher_value"`
	VoucherType     *string    `json:"voucher_type"`
}
