// Package handler содержит HTTP-обработчики API сервиса программы лояльности.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/twicks95/mmi-membership-service/internal/model"
	"github.com/twicks95/mmi-membership-service/internal/repository"
	"github.com/twicks95/mmi-membership-service/internal/service"
)

// birthDateLayout задаёт формат даты рождения в форме регистрации.
const birthDateLayout = "2006-01-02"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (int64, error)
	AuthenticateUser(ctx context.Context, memberID, password string) (*model.User, error)
	GetUserProfile(ctx context.Context, userID int64) (*model.UserProfile, error)
	BuyVoucher(ctx context.Context, userID, price int64) (int64, error)
	GetUserVouchers(ctx context.Context, userID int64, now time.Time) ([]model.VoucherGroup, error)
	ListVouchers(ctx context.Context) ([]model.CatalogVoucher, error)
	GetTransactionHistory(ctx context.Context, userID int64) ([]model.TransactionRecord, error)
}

// Handler реализует HTTP-обработчики API сервиса программы лояльности.
type Handler struct {
	service      Service
	logger       *zap.Logger
	frontendHost string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// frontendHost используется для построения redirect-URL после входа и регистрации.
func NewHandler(s Service, logger *zap.Logger, frontendHost string) *Handler {
	return &Handler{
		service:      s,
		logger:       logger,
		frontendHost: strings.TrimRight(frontendHost, "/"),
	}
}

type fieldError struct {
	Value    string `json:"value"`
	Msg      string `json:"msg"`
	Param    string `json:"param"`
	Location string `json:"location"`
}

type errorResponse struct {
	Errors []fieldError `json:"errors"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, e fieldError) {
	writeJSON(w, statusCode, errorResponse{Errors: []fieldError{e}})
}

func (h *Handler) writeInternalError(w http.ResponseWriter, err error, msg string) {
	h.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, fieldError{
		Msg:      "Internal server error",
		Location: "server",
	})
}

func userIDParam(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) redirectURL(userID int64) string {
	return fmt.Sprintf("%s/dashboard/%d", h.frontendHost, userID)
}

type registerRequest struct {
	FullName        string `json:"fullName"`
	PhoneNumber     string `json:"phoneNumber"`
	IDNumber        string `json:"idNumber"`
	BirthDate       string `json:"birthDate"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type registerResponse struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirectURL"`
}

// Register обрабатывает регистрацию нового участника программы лояльности.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fieldError{
			Msg:      "Invalid request body",
			Location: "body",
		})
		return
	}

	birthDate, err := time.Parse(birthDateLayout, req.BirthDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fieldError{
			Value:    req.BirthDate,
			Msg:      "Birth date must be in YYYY-MM-DD format",
			Param:    "birthDate",
			Location: "body",
		})
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		FullName:        req.FullName,
		PhoneNumber:     req.PhoneNumber,
		IDNumber:        req.IDNumber,
		BirthDate:       birthDate,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPasswordMismatch):
			writeError(w, http.StatusUnprocessableEntity, fieldError{
				Msg:      "Confirm password doesn't match",
				Param:    "confirmPassword",
				Location: "body",
			})
		case errors.Is(err, repository.ErrEmailExists):
			writeError(w, http.StatusConflict, fieldError{
				Value:    req.Email,
				Msg:      "Email is already registered as member",
				Param:    "email",
				Location: "body",
			})
		case errors.Is(err, repository.ErrPhoneExists):
			writeError(w, http.StatusConflict, fieldError{
				Value:    req.PhoneNumber,
				Msg:      "Phone number is already registered as member",
				Param:    "phoneNumber",
				Location: "body",
			})
		default:
			h.writeInternalError(w, err, "register user error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Success:     true,
		RedirectURL: h.redirectURL(userID),
	})
}

type loginRequest struct {
	MemberID string `json:"memberId"`
	Password string `json:"password"`
}

type userResponse struct {
	ID           int64   `json:"id"`
	PhoneNumber  string  `json:"phone_number"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	DateOfBirth  string  `json:"date_of_birth"`
	Gender       *string `json:"gender"`
	IDCard       string  `json:"id_card"`
	CurrentPoin  int64   `json:"current_poin"`
	MembershipID int64   `json:"membership_id"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:           u.ID,
		PhoneNumber:  u.PhoneNumber,
		Name:         u.Name,
		Email:        u.Email,
		DateOfBirth:  u.DateOfBirth.Format(birthDateLayout),
		Gender:       u.Gender,
		IDCard:       u.IDCard,
		CurrentPoin:  u.CurrentPoin,
		MembershipID: u.MembershipID,
	}
}

type loginResponse struct {
	Success     bool         `json:"success"`
	Data        userResponse `json:"data"`
	RedirectURL string       `json:"redirectURL"`
}

// Login выполняет аутентификацию участника по почте или номеру телефона.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fieldError{
			Msg:      "Invalid request body",
			Location: "body",
		})
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.MemberID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMemberID):
			writeError(w, http.StatusUnprocessableEntity, fieldError{
				Value:    req.MemberID,
				Msg:      "Member Id must be an email or phone number",
				Param:    "memberId",
				Location: "body",
			})
		case errors.Is(err, repository.ErrUserNotFound):
			writeError(w, http.StatusNotFound, fieldError{
				Value:    req.MemberID,
				Msg:      "Member Id is not registered",
				Param:    "memberId",
				Location: "body",
			})
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, fieldError{
				Msg:      "Invalid credential",
				Param:    "password",
				Location: "body",
			})
		default:
			h.writeInternalError(w, err, "login user error")
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:     true,
		Data:        newUserResponse(u),
		RedirectURL: h.redirectURL(u.ID),
	})
}

type profileResponse struct {
	userResponse
	MembershipName        string `json:"membership_name"`
	MembershipDescription string `json:"membership_description"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// GetUser возвращает данные участника вместе с его уровнем членства.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, fieldError{
			Value:    chi.URLParam(r, "userID"),
			Msg:      "User id must be a positive integer",
			Param:    "userId",
			Location: "params",
		})
		return
	}

	profile, err := h.service.GetUserProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, fieldError{
				Value:    strconv.FormatInt(userID, 10),
				Msg:      "User not found or unregistered",
				Param:    "userId",
				Location: "params",
			})
			return
		}
		h.writeInternalError(w, err, "get user error")
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{
		Success: true,
		Data: profileResponse{
			userResponse:          newUserResponse(&profile.User),
			MembershipName:        profile.MembershipName,
			MembershipDescription: profile.MembershipDescription,
		},
	})
}

type buyVoucherRequest struct {
	VoucherPrice int64 `json:"voucher_price"`
}

type buyVoucherResponse struct {
	Message     string `json:"message"`
	CurrentPoin int64  `json:"current_poin"`
}

// BuyVoucher списывает цену ваучера с баланса участника.
func (h *Handler) BuyVoucher(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, fieldError{
			Value:    chi.URLParam(r, "userID"),
			Msg:      "User id must be a positive integer",
			Param:    "userId",
			Location: "params",
		})
		return
	}

	var req buyVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fieldError{
			Msg:      "Invalid request body",
			Location: "body",
		})
		return
	}

	balance, err := h.service.BuyVoucher(r.Context(), userID, req.VoucherPrice)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPrice):
			writeError(w, http.StatusUnprocessableEntity, fieldError{
				Value:    strconv.FormatInt(req.VoucherPrice, 10),
				Msg:      "Voucher price must be a positive number",
				Param:    "voucher_price",
				Location: "body",
			})
		case errors.Is(err, repository.ErrUserNotFound):
			writeError(w, http.StatusNotFound, fieldError{
				Value:    strconv.FormatInt(userID, 10),
				Msg:      "User not found or unregistered",
				Param:    "userId",
				Location: "params",
			})
		case errors.Is(err, repository.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, fieldError{
				Value:    strconv.FormatInt(req.VoucherPrice, 10),
				Msg:      "Not enough points to buy this voucher",
				Param:    "voucher_price",
				Location: "body",
			})
		default:
			h.writeInternalError(w, err, "buy voucher error")
		}
		return
	}

	writeJSON(w, http.StatusOK, buyVoucherResponse{
		Message:     "Voucher purchased successfully.",
		CurrentPoin: balance,
	})
}

// MyVouchers возвращает ваучеры участника, сгруппированные на действующие и просроченные.
func (h *Handler) MyVouchers(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, fieldError{
			Value:    chi.URLParam(r, "userID"),
			Msg:      "User id must be a positive integer",
			Param:    "userId",
			Location: "params",
		})
		return
	}

	groups, err := h.service.GetUserVouchers(r.Context(), userID, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrNoVouchers) {
			writeError(w, http.StatusNotFound, fieldError{
				Msg:      "No vouchers available",
				Param:    "userId",
				Location: "params",
			})
			return
		}
		h.writeInternalError(w, err, "get user vouchers error")
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: groups})
}

// ListVouchers возвращает каталог ваучеров. Пустой каталог отдаётся как пустой список.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.service.ListVouchers(r.Context())
	if err != nil {
		h.writeInternalError(w, err, "list vouchers error")
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: vouchers})
}

// TransactionHistory возвращает сводную историю операций участника.
func (h *Handler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, fieldError{
			Value:    chi.URLParam(r, "userID"),
			Msg:      "User id must be a positive integer",
			Param:    "userId",
			Location: "params",
		})
		return
	}

	records, err := h.service.GetTransactionHistory(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrNoTransactions) {
			writeError(w, http.StatusNotFound, fieldError{
				Msg:      "No transaction history",
				Param:    "userId",
				Location: "params",
			})
			return
		}
		h.writeInternalError(w, err, "get transaction history error")
		return
	}

	writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: records})
}
