package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	bookingsservice "slotkeeper/internal/bookings/service"
	groupserrors "slotkeeper/internal/groups/errors"
	holdsservice "slotkeeper/internal/holds/service"
	slotsservice "slotkeeper/internal/slots/service"
	"slotkeeper/internal/storage"
	"slotkeeper/pkg/clock"
	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
	"slotkeeper/pkg/model"
	"slotkeeper/pkg/sanitizer"
	"slotkeeper/pkg/validation"

	"github.com/google/uuid"
)

type CreateRequest struct {
	SlotID               string `validate:"required"`
	SessionID            string `validate:"required,session_token"`
	MaxSize              int    `validate:"min=1,max=1000"`
	AmountPerParticipant int64  `validate:"min=1"`
	Currency             string `validate:"required,currency_code"`
}

type participantRequest struct {
	Client model.ClientInfo `validate:"required"`
}

// View is a group with its derived total.
type View struct {
	*model.GroupBooking
	TotalDue int64 `json:"totalDue"`
}

type GroupService interface {
	CreateGroupHold(ctx context.Context, req CreateRequest) (*View, error)
	Get(ctx context.Context, id string) (*View, error)
	// AddParticipant reserves one more unit for the group and opens a pending
	// booking for the participant, all in one transaction.
	AddParticipant(ctx context.Context, groupID string, client model.ClientInfo) (*model.Booking, *View, error)
	// RemoveParticipant cancels the participant's booking, releasing its
	// unit, and drops it from the group. sessionID must own the group.
	RemoveParticipant(ctx context.Context, groupID, bookingID, sessionID string) (*View, error)
}

type groupService struct {
	store     storage.Store
	slots     slotsservice.SlotService
	holds     holdsservice.HoldService
	bookings  bookingsservice.BookingService
	validator *validation.Validator
	clock     clock.Clock
	cfg       *config.Config
}

func NewGroupService(
	store storage.Store,
	slots slotsservice.SlotService,
	holds holdsservice.HoldService,
	bookings bookingsservice.BookingService,
	validator *validation.Validator,
	clk clock.Clock,
	cfg *config.Config,
) GroupService {
	return &groupService{
		store:     store,
		slots:     slots,
		holds:     holds,
		bookings:  bookings,
		validator: validator,
		clock:     clk,
		cfg:       cfg,
	}
}

// TotalDue is the price of a group of n participants.
func TotalDue(amountPerParticipant int64, n int) int64 {
	if n <= 0 {
		return 0
	}
	return amountPerParticipant * int64(n)
}

func newView(g *model.GroupBooking) *View {
	return &View{GroupBooking: g, TotalDue: TotalDue(g.AmountPerParticipant, len(g.BookingIDs))}
}

func (s *groupService) CreateGroupHold(ctx context.Context, req CreateRequest) (*View, error) {
	req.SlotID = sanitizer.SanitizeIdentifier(req.SlotID)
	req.SessionID = sanitizer.SanitizeIdentifier(req.SessionID)
	req.Currency = sanitizer.NormalizeCurrency(req.Currency)
	if req.Currency == "" {
		req.Currency = s.cfg.DefaultCurrency
	}
	if err := s.validator.Struct(req); err != nil {
		s.cfg.Log.Warn("Group validation failed", "slot_id", req.SlotID, "error", err)
		return nil, validation.ToAppError("Group validation failed", err)
	}

	slot, err := s.slots.GetByID(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.Capacity < req.MaxSize {
		return nil, ToAppError(fmt.Errorf("%w: capacity %d, maxSize %d", groupserrors.ErrGroupTooLarge, slot.Capacity, req.MaxSize), "", req.MaxSize)
	}

	now := s.clock.Now()
	group := &model.GroupBooking{
		ID:                   uuid.NewString(),
		SlotID:               slot.ID,
		SessionID:            req.SessionID,
		MaxSize:              req.MaxSize,
		Participants:         []model.ClientInfo{},
		BookingIDs:           []string{},
		AmountPerParticipant: req.AmountPerParticipant,
		Currency:             req.Currency,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.Groups().CreateGroup(ctx, group); err != nil {
		s.cfg.Log.Error("Failed to create group", "slot_id", slot.ID, "error", err)
		return nil, storage.ToAppError(err, "Group", group.ID)
	}

	s.cfg.Log.Info("Group created", "group_id", group.ID, "slot_id", group.SlotID, "max_size", group.MaxSize)
	return newView(group), nil
}

func (s *groupService) Get(ctx context.Context, id string) (*View, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Group ID cannot be empty")
	}
	group, err := s.store.Groups().FindGroup(ctx, id)
	if err != nil {
		return nil, storage.ToAppError(err, "Group", id)
	}
	return newView(group), nil
}

func (s *groupService) AddParticipant(ctx context.Context, groupID string, client model.ClientInfo) (*model.Booking, *View, error) {
	groupID = sanitizer.SanitizeIdentifier(groupID)
	if groupID == "" {
		return nil, nil, apperrors.InvalidInput("Group ID cannot be empty")
	}
	p := participantRequest{Client: sanitizer.SanitizeClientInfo(client)}
	if err := s.validator.Struct(p); err != nil {
		return nil, nil, validation.ToAppError("Participant validation failed", err)
	}

	var (
		group   *model.GroupBooking
		booking *model.Booking
	)
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		group, err = lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group.Full() {
			return groupserrors.ErrGroupFull
		}

		hold, err := s.holds.CreateInTx(ctx, tx, holdsservice.CreateRequest{
			SlotID:    group.SlotID,
			SessionID: fmt.Sprintf("%s#%d", group.SessionID, group.Version+1),
			GroupID:   group.ID,
		})
		if err != nil {
			return err
		}

		booking, err = s.bookings.CreateInTx(ctx, tx, bookingsservice.CreateRequest{
			HoldID:    hold.ID,
			Client:    p.Client,
			AmountDue: group.AmountPerParticipant,
			Currency:  group.Currency,
		})
		if err != nil {
			return err
		}

		group.Participants = append(group.Participants, p.Client)
		group.BookingIDs = append(group.BookingIDs, booking.ID)
		group.UpdatedAt = s.clock.Now()
		return tx.Groups().SaveGroup(ctx, group)
	})
	if err != nil {
		s.cfg.Log.Warn("Failed to add group participant", "group_id", groupID, "error", err)
		maxSize := 0
		if group != nil {
			maxSize = group.MaxSize
		}
		return nil, nil, ToAppError(err, groupID, maxSize)
	}

	s.slots.Invalidate(ctx, group.SlotID)
	s.bookings.AfterCommit(ctx, bookingsservice.Change{Booking: booking})
	s.cfg.Log.Info("Group participant added",
		"group_id", group.ID,
		"booking_id", booking.ID,
		"participants", len(group.BookingIDs),
		"max_size", group.MaxSize,
	)
	return booking, newView(group), nil
}

func (s *groupService) RemoveParticipant(ctx context.Context, groupID, bookingID, sessionID string) (*View, error) {
	if groupID == "" || bookingID == "" {
		return nil, apperrors.InvalidInput("Group ID and booking ID are required")
	}

	var (
		group   *model.GroupBooking
		change  bookingsservice.Change
		changed bool
	)
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		change, changed = bookingsservice.Change{}, false

		group, err = lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if sessionID == "" || group.SessionID != sessionID {
			return groupserrors.ErrSessionMismatch
		}
		idx := group.IndexOf(bookingID)
		if idx < 0 {
			return groupserrors.ErrNotMember
		}

		booking, err := tx.Bookings().FindBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		// A failed or cancelled participant no longer holds a unit.
		if !booking.Status.IsTerminal() {
			change, changed, err = s.bookings.Apply(ctx, tx, bookingID, bookingsservice.EventClientCancel)
			if err != nil {
				return err
			}
		}

		group.Participants = slices.Delete(group.Participants, idx, idx+1)
		group.BookingIDs = slices.Delete(group.BookingIDs, idx, idx+1)
		group.UpdatedAt = s.clock.Now()
		return tx.Groups().SaveGroup(ctx, group)
	})
	if err != nil {
		s.cfg.Log.Warn("Failed to remove group participant", "group_id", groupID, "booking_id", bookingID, "error", err)
		return nil, ToAppError(err, groupID, 0)
	}

	if changed {
		s.bookings.AfterCommit(ctx, change)
	}
	s.cfg.Log.Info("Group participant removed", "group_id", groupID, "booking_id", bookingID, "participants", len(group.BookingIDs))
	return newView(group), nil
}

func lockGroup(ctx context.Context, tx storage.Tx, id string) (*model.GroupBooking, error) {
	group, err := tx.Groups().LockGroup(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", groupserrors.ErrGroupNotFound, id)
	}
	return group, err
}

// ToAppError translates group sentinels and everything the participant
// transaction can surface from holds and bookings.
func ToAppError(err error, groupID string, maxSize int) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, groupserrors.ErrGroupNotFound):
		return apperrors.NotFoundWithID("Group", groupID)
	case errors.Is(err, groupserrors.ErrGroupFull):
		return apperrors.GroupFull(groupID, maxSize)
	case errors.Is(err, groupserrors.ErrGroupTooLarge):
		return apperrors.New(apperrors.CodeGroupFull, "Group size exceeds slot capacity", http.StatusConflict).
			WithDetails(map[string]any{"maxSize": maxSize, "reason": err.Error()})
	case errors.Is(err, groupserrors.ErrNotMember):
		return apperrors.NotFound("Group participant")
	case errors.Is(err, groupserrors.ErrSessionMismatch):
		return apperrors.Forbidden("Group belongs to another session")
	}
	return bookingsservice.ToAppError(err, "", "")
}
