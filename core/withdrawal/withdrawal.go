// Package withdrawal handles the withdrawal requests submitted by users and processed by admins.
package withdrawal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
)

// Statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

var (
	AllStatuses = []string{StatusPending, StatusCompleted, StatusApproved, StatusRejected}

	// MinAmount is the minimum withdrawable amount, in rupees.
	MinAmount = decimal.NewFromInt(50)

	// errors
	ErrNotFound       = core.NewNotFoundError("withdrawal request")
	ErrAmountTooLow   = fmt.Errorf("amount must be at least %s", MinAmount)
	ErrInvalidPhone   = errors.New("phone number must be exactly 10 digits")
	ErrUnknownStatus  = errors.New("unknown withdrawal status")
	ErrAmountRequired = errors.New("amount is required")

	NowFunc = time.Now // mockable
)

type Request struct {
	ID          string          `json:"id" db:"id"`
	Status      string          `json:"status" db:"status"`
	UserID      string          `json:"userId" db:"user_id"`
	Timestamp   time.Time       `json:"timestamp" db:"created_at"`
	PhoneNumber string          `json:"phoneNumber" db:"phone_number"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	UpdatedAt   time.Time       `json:"-" db:"updated_at"`
}

// MarshalJSON writes the amount as a JSON number.
func (r Request) MarshalJSON() ([]byte, error) {
	type request Request
	return json.Marshal(struct {
		request
		Amount json.RawMessage `json:"amount"`
	}{request(r), json.RawMessage(r.Amount.String())})
}

// NewRequest is the payload of a withdrawal request.
type NewRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	PhoneNumber string           `json:"phoneNumber" validate:"required,phone10"`
}

// MarshalJSON writes the amount as a JSON number, or null when missing.
func (nr NewRequest) MarshalJSON() ([]byte, error) {
	type newRequest NewRequest
	amount := json.RawMessage("null")
	if nr.Amount != nil {
		amount = json.RawMessage(nr.Amount.String())
	}
	return json.Marshal(struct {
		newRequest
		Amount json.RawMessage `json:"amount"`
	}{newRequest(nr), amount})
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.PhoneNumber = core.CleanString(nr.PhoneNumber)
	if err := validate.Struct(nr); err != nil {
		return err
	}
	if nr.Amount == nil {
		return core.NewValidationError(ErrAmountRequired, core.FieldError{Field: "amount", Error: ErrAmountRequired.Error()})
	}
	if nr.Amount.LessThan(MinAmount) {
		return core.NewValidationError(ErrAmountTooLow, core.FieldError{Field: "amount", Error: ErrAmountTooLow.Error()})
	}
	return nil
}

type StatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=pending completed approved rejected"`
}

type QueryFilter struct {
	UserID string `query:"user"`
	Status string `query:"status"`
}

type (
	Repository interface {
		CreateRequest(ctx context.Context, wr Request) (Request, error)
		GetRequest(ctx context.Context, id string) (Request, error)
		// QueryRequests returns the matching requests, most recent first.
		QueryRequests(ctx context.Context, filter QueryFilter) ([]Request, error)
		UpdateRequest(ctx context.Context, wr Request) (Request, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	ServiceInterface interface {
		Submit(ctx context.Context, userID string, nr NewRequest) (Request, error)
		GetByID(ctx context.Context, id string) (Request, error)
		Query(ctx context.Context, filter QueryFilter) ([]Request, error)
		UpdateStatus(ctx context.Context, id, status string) (Request, error)
	}

	Service struct {
		logger   core.Logger
		repo     Repository
		users    UserGetter
		emailSvc core.EmailService
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(logger core.Logger, repo Repository, users UserGetter, emailSvc core.EmailService) *Service {
	return &Service{logger: logger, repo: repo, users: users, emailSvc: emailSvc}
}

// Submit records a pending withdrawal request; nr must have been validated.
func (svc *Service) Submit(ctx context.Context, userID string, nr NewRequest) (Request, error) {
	if nr.Amount == nil || nr.Amount.LessThan(MinAmount) {
		return Request{}, ErrAmountTooLow
	}
	if !core.IsValidPhone(nr.PhoneNumber) {
		return Request{}, ErrInvalidPhone
	}

	now := NowFunc().UTC()
	wr, err := svc.repo.CreateRequest(ctx, Request{
		ID:          uuid.New().String(),
		Status:      StatusPending,
		UserID:      userID,
		Timestamp:   now,
		PhoneNumber: nr.PhoneNumber,
		Amount:      *nr.Amount,
		UpdatedAt:   now,
	})
	return wr, errors.Wrap(err, "creating withdrawal request")
}

func (svc *Service) GetByID(ctx context.Context, id string) (Request, error) {
	return svc.repo.GetRequest(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Request, error) {
	return svc.repo.QueryRequests(ctx, filter)
}

func validStatus(status string) bool {
	for _, s := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// UpdateStatus is done by admins; the owner of the request is notified.
func (svc *Service) UpdateStatus(ctx context.Context, id, status string) (Request, error) {
	if !validStatus(status) {
		return Request{}, ErrUnknownStatus
	}
	wr, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if wr.Status == status {
		return wr, nil
	}
	wr.Status = status
	wr.UpdatedAt = NowFunc().UTC()
	if wr, err = svc.repo.UpdateRequest(ctx, wr); err != nil {
		return Request{}, errors.Wrap(err, "updating withdrawal request")
	}
	svc.notify(ctx, wr)
	return wr, nil
}

func (svc *Service) notify(ctx context.Context, wr Request) {
	if svc.emailSvc == nil {
		return
	}
	usr, err := svc.users.GetByID(ctx, wr.UserID)
	if err != nil || usr.Email == "" {
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("getting user %s to notify: %v", wr.UserID, err))
		}
		return
	}
	svc.emailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Withdrawal request " + wr.Status,
		TemplateName: "withdrawal_status",
		TemplateData: wr,
	})
}
