// Package service реализует бизнес-логику сервиса программы лояльности.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/twicks95/mmi-membership-service/internal/model"
	"github.com/twicks95/mmi-membership-service/internal/validation"
)

// ErrPasswordMismatch возвращается, если пароль и его подтверждение не совпадают.
var (
	ErrPasswordMismatch = errors.New("password confirmation does not match")
	// ErrInvalidMemberID возвращается, если идентификатор участника не похож ни на почту, ни на телефон.
	ErrInvalidMemberID = errors.New("member id must be an email or a phone number")
	// ErrInvalidCredentials возвращается при неверном пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidPrice возвращается при неположительной цене ваучера.
	ErrInvalidPrice = errors.New("voucher price must be positive")
	// ErrNoVouchers возвращается, если у участника нет ни одного ваучера.
	ErrNoVouchers = errors.New("no vouchers available")
	// ErrNoTransactions возвращается, если у участника нет истории операций.
	ErrNoTransactions = errors.New("no transaction history")
)

const (
	// Новые участники начинают с базового уровня членства и нулевого баланса.
	defaultMembershipID = 1
	defaultPoinBalance  = 0

	userVouchersLimit = 5
	catalogLimit      = 20
	historyLimit      = 20
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, u model.NewUser) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*model.User, error)
	GetUserProfile(ctx context.Context, userID int64) (*model.UserProfile, error)
	DeductPoints(ctx context.Context, userID, price int64) (int64, error)
	GetUserVouchers(ctx context.Context, userID int64, limit int) ([]model.UserVoucher, error)
	ListVouchers(ctx context.Context, limit int) ([]model.CatalogVoucher, error)
	GetTransactionHistory(ctx context.Context, userID int64, limit int) ([]model.TransactionRecord, error)
}

// Service содержит бизнес-логику сервиса программы лояльности.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterInput содержит данные формы регистрации нового участника.
type RegisterInput struct {
	FullName        string
	PhoneNumber     string
	IDNumber        string
	BirthDate       time.Time
	Email           string
	Password        string
	ConfirmPassword string
}

// RegisterUser регистрирует нового участника с базовым уровнем членства
// и нулевым балансом. Пароль сохраняется только в виде bcrypt-хэша.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (int64, error) {
	if in.Password != in.ConfirmPassword {
		return 0, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateUser(ctx, model.NewUser{
		PhoneNumber:  in.PhoneNumber,
		Name:         in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		DateOfBirth:  in.BirthDate,
		IDCard:       in.IDNumber,
		CurrentPoin:  defaultPoinBalance,
		MembershipID: defaultMembershipID,
	})
}

// AuthenticateUser проверяет учётные данные участника и возвращает его запись.
// Идентификатором служит почта или номер телефона.
func (s *Service) AuthenticateUser(ctx context.Context, memberID, password string) (*model.User, error) {
	var (
		u   *model.User
		err error
	)

	switch {
	case validation.IsEmail(memberID):
		u, err = s.repo.GetUserByEmail(ctx, memberID)
	case validation.IsPhoneNumber(memberID):
		u, err = s.repo.GetUserByPhone(ctx, memberID)
	default:
		return nil, ErrInvalidMemberID
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUserProfile возвращает участника вместе с данными его уровня членства.
func (s *Service) GetUserProfile(ctx context.Context, userID int64) (*model.UserProfile, error) {
	return s.repo.GetUserProfile(ctx, userID)
}

// BuyVoucher списывает цену ваучера с баланса участника и возвращает новый баланс.
func (s *Service) BuyVoucher(ctx context.Context, userID, price int64) (int64, error) {
	if price <= 0 {
		return 0, ErrInvalidPrice
	}
	return s.repo.DeductPoints(ctx, userID, price)
}

// GetUserVouchers возвращает ваучеры участника, сгруппированные на
// действующие и просроченные относительно момента now.
func (s *Service) GetUserVouchers(ctx context.Context, userID int64, now time.Time) ([]model.VoucherGroup, error) {
	vouchers, err := s.repo.GetUserVouchers(ctx, userID, userVouchersLimit)
	if err != nil {
		return nil, err
	}
	if len(vouchers) == 0 {
		return nil, ErrNoVouchers
	}

	return groupByExpiry(vouchers, now), nil
}

// groupByExpiry разбивает ваучеры на действующие и просроченные.
// Ваучер, истекающий ровно в момент now, считается просроченным.
func groupByExpiry(vouchers []model.UserVoucher, now time.Time) []model.VoucherGroup {
	active := make([]model.UserVoucher, 0, len(vouchers))
	expired := make([]model.UserVoucher, 0, len(vouchers))

	for _, v := range vouchers {
		if v.ExpiredAt.After(now) {
			active = append(active, v)
		} else {
			expired = append(expired, v)
		}
	}

	return []model.VoucherGroup{
		{Status: model.VoucherStatusActive, Data: active},
		{Status: model.VoucherStatusExpired, Data: expired},
	}
}

// ListVouchers возвращает каталог ваучеров. Пустой каталог — это
// нормальный результат, а не ошибка.
func (s *Service) ListVouchers(ctx context.Context) ([]model.CatalogVoucher, error) {
	vouchers, err := s.repo.ListVouchers(ctx, catalogLimit)
	if err != nil {
		return nil, err
	}
	if vouchers == nil {
		vouchers = []model.CatalogVoucher{}
	}
	return vouchers, nil
}

// GetTransactionHistory возвращает сводную историю операций участника.
func (s *Service) GetTransactionHistory(ctx context.Context, userID int64) ([]model.TransactionRecord, error) {
	records, err := s.repo.GetTransactionHistory(ctx, userID, historyLimit)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoTransactions
	}
	return records, nil
}
