package models

// Analytics is the admin dashboard snapshot.
type Analytics struct {
	TotalUsers          int     `json:"total_users"`
	ActiveSessions      int     `json:"active_sessions"`
	CompletedScreenings int     `json:"completed_screenings"`
	CounselorBookings   int     `json:"counselor_bookings"`
	ForumPosts          int     `json:"forum_posts"`
	CrisisInterventions int     `json:"crisis_interventions"`
	Alerts              []Alert `json:"alerts"`
}

// Alert is a dashboard item that needs follow-up.
type Alert struct {
	Level   string `json:"level"` // "high" or "warning"
	Title   string `json:"title"`
	Details string `json:"details"`
}
