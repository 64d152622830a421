package booking

import (
	"testing"
	"time"

	"github.com/MattCruikshank/mindcare/internal/catalog"
	"github.com/MattCruikshank/mindcare/internal/db"
	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	bookings []models.Booking
}

func (m *memStore) CreateBooking(b *models.Booking) error {
	for _, existing := range m.bookings {
		if existing.CounselorID == b.CounselorID && existing.Date == b.Date && existing.Time == b.Time {
			return db.ErrConflict
		}
	}
	b.ID = int64(len(m.bookings) + 1)
	m.bookings = append(m.bookings, *b)
	return nil
}

func (m *memStore) BookedTimes(counselorID int, date string) ([]string, error) {
	var out []string
	for _, b := range m.bookings {
		if b.CounselorID == counselorID && b.Date == date {
			out = append(out, b.Time)
		}
	}
	return out, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	svc := NewService(&memStore{}, cat)
	svc.now = func() time.Time { return time.Date(2030, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestBookAndSlots(t *testing.T) {
	svc := newTestService(t)

	b, err := svc.Book(Request{CounselorID: 1, Date: "2030-03-15", Time: "14:00", Name: " Asha "})
	require.NoError(t, err)
	assert.Equal(t, "Asha", b.Name)

	slots, err := svc.Slots(1, "2030-03-15")
	require.NoError(t, err)
	require.Len(t, slots, len(TimeSlots))
	for _, s := range slots {
		assert.Equal(t, s.Time != "14:00", s.Available, s.Time)
	}

	_, err = svc.Book(Request{CounselorID: 1, Date: "2030-03-15", Time: "14:00", Name: "Ben"})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookValidation(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		req Request
		err error
	}{
		{Request{CounselorID: 9, Date: "2030-03-16", Time: "09:00", Name: "A"}, ErrUnknownCounselor},
		{Request{CounselorID: 1, Date: "16/03/2030", Time: "09:00", Name: "A"}, ErrInvalidDate},
		{Request{CounselorID: 1, Date: "2030-03-14", Time: "09:00", Name: "A"}, ErrPastDate},
		{Request{CounselorID: 1, Date: "2030-03-16", Time: "12:00", Name: "A"}, ErrInvalidSlot},
		{Request{CounselorID: 1, Date: "2030-03-16", Time: "09:00", Name: "  "}, ErrMissingName},
	}
	for _, tt := range tests {
		_, err := svc.Book(tt.req)
		assert.ErrorIs(t, err, tt.err)
	}
}

func TestMonthAdd(t *testing.T) {
	m := Month{Year: 2030, Month: time.January}
	assert.Equal(t, Month{Year: 2029, Month: time.December}, m.Add(-1))
	assert.Equal(t, Month{Year: 2030, Month: time.February}, m.Add(1))
	assert.Equal(t, Month{Year: 2031, Month: time.January}, m.Add(12))
	assert.Equal(t, Month{Year: 2028, Month: time.November}, m.Add(-14))
}

func TestMonthLayout(t *testing.T) {
	feb := Month{Year: 2028, Month: time.February}
	assert.Equal(t, 29, feb.Days())
	assert.Equal(t, time.Tuesday, feb.FirstWeekday())
	assert.Equal(t, "2028-02-09", feb.Date(9))
	assert.Equal(t, "February 2028", feb.String())
}
