// Package booking manages counselor session slots and bookings.
package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MattCruikshank/mindcare/internal/catalog"
	"github.com/MattCruikshank/mindcare/internal/db"
	"github.com/MattCruikshank/mindcare/internal/models"
)

// DateLayout is the wire format of booking dates.
const DateLayout = "2006-01-02"

// TimeSlots are the bookable session start times of every day.
var TimeSlots = []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}

var (
	ErrUnknownCounselor = errors.New("unknown counselor")
	ErrInvalidDate      = errors.New("invalid date")
	ErrPastDate         = errors.New("date is in the past")
	ErrInvalidSlot      = errors.New("invalid time slot")
	ErrSlotTaken        = errors.New("time slot already booked")
	ErrMissingName      = errors.New("name is required")
)

// Store persists bookings.
type Store interface {
	CreateBooking(b *models.Booking) error
	BookedTimes(counselorID int, date string) ([]string, error)
}

// Slot is one session start time on a given day.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// Request is a booking submission.
type Request struct {
	CounselorID int    `json:"counselor_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Notes       string `json:"notes"`
}

// Service validates and records bookings.
type Service struct {
	store   Store
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewService creates a booking service.
func NewService(store Store, cat *catalog.Catalog) *Service {
	return &Service{store: store, catalog: cat, now: time.Now}
}

// Slots returns the day's slots for a counselor with their availability.
func (s *Service) Slots(counselorID int, date string) ([]Slot, error) {
	if _, ok := s.catalog.Counselor(counselorID); !ok {
		return nil, ErrUnknownCounselor
	}
	if _, err := s.parseFutureDate(date); err != nil {
		return nil, err
	}
	booked, err := s.store.BookedTimes(counselorID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load booked times: %w", err)
	}
	taken := make(map[string]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}
	slots := make([]Slot, len(TimeSlots))
	for i, t := range TimeSlots {
		slots[i] = Slot{Time: t, Available: !taken[t]}
	}
	return slots, nil
}

// Book records a session for the requested counselor, date and slot.
func (s *Service) Book(req Request) (*models.Booking, error) {
	if _, ok := s.catalog.Counselor(req.CounselorID); !ok {
		return nil, ErrUnknownCounselor
	}
	if _, err := s.parseFutureDate(req.Date); err != nil {
		return nil, err
	}
	if !validSlot(req.Time) {
		return nil, ErrInvalidSlot
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrMissingName
	}

	b := &models.Booking{
		CounselorID: req.CounselorID,
		Date:        req.Date,
		Time:        req.Time,
		Name:        name,
		Contact:     strings.TrimSpace(req.Contact),
		Notes:       strings.TrimSpace(req.Notes),
	}
	if err := s.store.CreateBooking(b); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}
	return b, nil
}

func (s *Service) parseFutureDate(date string) (time.Time, error) {
	now := s.now()
	d, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if IsPast(d, now) {
		return time.Time{}, ErrPastDate
	}
	return d, nil
}

func validSlot(t string) bool {
	for _, s := range TimeSlots {
		if s == t {
			return true
		}
	}
	return false
}

// IsPast reports whether day lies before the calendar day of now.
func IsPast(day, now time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return day.Before(today)
}
