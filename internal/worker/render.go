package worker

import (
	"fmt"
	"time"

	"campusbook/internal/events"
	"campusbook/internal/models"
)

const dateLayout = "January 2, 2006 15:04"

// render turns an event into the inbox notifications it produces. Events a
// user caused on their own resource produce nothing.
func render(e *events.Event, loc *time.Location) ([]models.Notification, error) {
	if e.Type == events.EventWaitlistPromoted {
		var p events.WaitlistEventPayload
		if err := e.Decode(&p); err != nil {
			return nil, err
		}
		id := p.EntryID
		return []models.Notification{{
			UserID:     p.UserID,
			EventType:  e.Type,
			WaitlistID: &id,
			Body:       fmt.Sprintf("A slot for %s on %s is now available. Book it before someone else does.", p.ResourceTitle, p.RequestedAt.In(loc).Format(dateLayout)),
		}}, nil
	}

	var p events.BookingEventPayload
	if err := e.Decode(&p); err != nil {
		return nil, err
	}
	if p.RequesterID == p.OwnerID {
		return nil, nil
	}

	when := formatSpan(p.Start, p.End, loc)
	var out []models.Notification
	add := func(userID int64, body string) {
		id := p.BookingID
		out = append(out, models.Notification{UserID: userID, EventType: e.Type, BookingID: &id, Body: body})
	}

	switch e.Type {
	case events.EventBookingCreated:
		if p.Status == models.StatusApproved {
			add(p.RequesterID, fmt.Sprintf("New booking for %s on %s is confirmed.", p.ResourceTitle, when))
		} else {
			add(p.RequesterID, fmt.Sprintf("New booking request for %s on %s was submitted and awaits approval.", p.ResourceTitle, when))
			add(p.OwnerID, fmt.Sprintf("New booking request for %s on %s needs your review.", p.ResourceTitle, when))
		}
	case events.EventBookingApproved:
		add(p.RequesterID, fmt.Sprintf("Your booking request for %s on %s has been approved.", p.ResourceTitle, when))
	case events.EventBookingRejected:
		add(p.RequesterID, fmt.Sprintf("Your booking request for %s on %s has been rejected. Please pick another time slot.", p.ResourceTitle, when))
	case events.EventBookingCancelled:
		add(p.RequesterID, fmt.Sprintf("Your booking for %s on %s has been cancelled.", p.ResourceTitle, when))
	default:
		return nil, fmt.Errorf("unknown event type: %s", e.Type)
	}
	return out, nil
}

func formatSpan(start, end time.Time, loc *time.Location) string {
	start, end = start.In(loc), end.In(loc)
	return fmt.Sprintf("%s-%s", start.Format(dateLayout), end.Format("15:04"))
}
