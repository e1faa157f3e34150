package catalog

import (
	"time"

	"github.com/hitoshi/eventease/internal/model"
)

// SampleEvents は保存済みカタログが空のときに使う初期カタログを返す。
func SampleEvents() []model.Event {
	return []model.Event{
		{
			ID:          1,
			Name:        "Annual Tech Conference 2026",
			Date:        time.Date(2026, 11, 15, 9, 0, 0, 0, time.UTC),
			Location:    "Microsoft Conference Center, Redmond, WA",
			Description: "Join industry leaders for insights into the latest technology trends, innovations, and future developments in software engineering and AI.",
			Category:    "Technology",
			Price:       299.99,
			Capacity:    500,
			ImageURL:    "/images/tech-conference.jpg",
			Organizer:   "TechEvents Inc.",
		},
		{
			ID:          2,
			Name:        "Digital Marketing Summit",
			Date:        time.Date(2026, 12, 5, 10, 0, 0, 0, time.UTC),
			Location:    "Convention Center, Austin, TX",
			Description: "Explore the latest strategies in digital marketing, social media engagement, and customer acquisition techniques.",
			Category:    "Marketing",
			Price:       199.99,
			Capacity:    300,
			ImageURL:    "/images/marketing-summit.jpg",
			Organizer:   "Marketing Pro Events",
		},
		{
			ID:          3,
			Name:        "Leadership Workshop",
			Date:        time.Date(2026, 11, 22, 14, 0, 0, 0, time.UTC),
			Location:    "Business Center, Chicago, IL",
			Description: "Interactive workshop focusing on modern leadership skills, team management, and organizational effectiveness.",
			Category:    "Leadership",
			Price:       149.99,
			Capacity:    100,
			ImageURL:    "/images/leadership-workshop.jpg",
			Organizer:   "Leadership Academy",
		},
		{
			ID:          4,
			Name:        "Corporate Networking Gala",
			Date:        time.Date(2026, 12, 10, 18, 30, 0, 0, time.UTC),
			Location:    "Grand Ballroom, Chicago, IL",
			Description: "An elegant evening of professional networking with industry executives, entrepreneurs, and thought leaders.",
			Category:    "Networking",
			Price:       125.00,
			Capacity:    250,
			ImageURL:    "/images/networking-gala.jpg",
			Organizer:   "Business Connect",
		},
		{
			ID:          5,
			Name:        "Innovation in Healthcare Symposium",
			Date:        time.Date(2026, 11, 28, 8, 30, 0, 0, time.UTC),
			Location:    "Medical Center Auditorium, Boston, MA",
			Description: "Discover breakthrough innovations in healthcare technology, telemedicine, and patient care solutions.",
			Category:    "Healthcare",
			Price:       275.00,
			Capacity:    400,
			ImageURL:    "/images/healthcare-symposium.jpg",
			Organizer:   "HealthTech Events",
		},
		{
			ID:          6,
			Name:        "Startup Pitch Competition",
			Date:        time.Date(2026, 12, 15, 13, 0, 0, 0, time.UTC),
			Location:    "Innovation Hub, San Francisco, CA",
			Description: "Watch emerging startups pitch their innovative ideas to a panel of venture capitalists and industry experts.",
			Category:    "Entrepreneurship",
			Price:       75.00,
			Capacity:    200,
			ImageURL:    "/images/startup-pitch.jpg",
			Organizer:   "Startup Valley",
		},
	}
}
