package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"campusbook/internal/availability"
	"campusbook/internal/models"
)

const closedDayMessage = "This day is not available for booking"

type resourceResponse struct {
	models.Resource
	Availability map[string]string              `json:"availability"`
	RulesError   string                         `json:"rules_error,omitempty"`
	Week         []availability.DayAvailability `json:"week,omitempty"`
}

func newResourceResponse(res models.Resource) resourceResponse {
	resp := resourceResponse{Resource: res}
	set, err := availability.Parse(res.AvailabilityRules)
	if err != nil {
		resp.RulesError = err.Error()
		return resp
	}
	resp.Availability = set.Schedule.Strings()
	resp.RequiresApproval = res.RequiresApproval || set.RequiresApproval
	return resp
}

func (s *HTTPServer) loc() *time.Location {
	return s.svc.Availability.Location()
}

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.svc.Resources.ListResources(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("available_at")); raw != "" {
		at, err := parseTime(raw, s.loc())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resources, err = s.svc.Availability.FilterAvailableAt(r.Context(), resources, at)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	out := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		out = append(out, newResourceResponse(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": out})
}

func (s *HTTPServer) handleGetResource(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}

	resp := newResourceResponse(*res)
	week, err := s.svc.Availability.WeekSummary(r.Context(), res)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp.Week = week
	writeJSON(w, http.StatusOK, resp)
}

type createResourceRequest struct {
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Category         string            `json:"category"`
	Location         string            `json:"location"`
	Capacity         int               `json:"capacity"`
	RequiresApproval bool              `json:"requires_approval"`
	Status           string            `json:"status"`
	Availability     map[string]string `json:"availability"`
}

func (s *HTTPServer) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var body createResourceRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := &models.Resource{
		Title:            body.Title,
		Description:      body.Description,
		Category:         body.Category,
		Location:         body.Location,
		Capacity:         body.Capacity,
		RequiresApproval: body.RequiresApproval,
		Status:           body.Status,
	}
	if err := s.svc.Resources.CreateResource(r.Context(), actorFrom(r.Context()), res, body.Availability); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newResourceResponse(*res))
}

func (s *HTTPServer) handleSetResourceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Resources.SetStatus(r.Context(), actorFrom(r.Context()), id, body.Status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": body.Status})
}

// resource loads the resource named by the {id} path value as the caller may
// see it, writing the error response itself when it cannot.
func (s *HTTPServer) resource(w http.ResponseWriter, r *http.Request) (*models.Resource, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	res, err := s.svc.Resources.GetVisibleResource(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return res, true
}

type slotsResponse struct {
	ResourceID     int64               `json:"resource_id"`
	Date           string              `json:"date"`
	DayAvailable   bool                `json:"day_available"`
	DayHasSlots    bool                `json:"day_has_slots"`
	AllSlots       []availability.Slot `json:"all_slots"`
	AvailableSlots []availability.Slot `json:"available_slots"`
	BookedSlots    []availability.Slot `json:"booked_slots"`
	Error          string              `json:"error,omitempty"`
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"), s.loc())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	day, err := s.svc.Availability.Slots(r.Context(), res, date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := slotsResponse{
		ResourceID:     res.ID,
		Date:           date.Format(dateLayout),
		DayAvailable:   day.Open,
		AllSlots:       nonNilSlots(day.Slots),
		AvailableSlots: nonNilSlots(day.AvailableSlots()),
		BookedSlots:    nonNilSlots(day.BookedSlots()),
	}
	resp.DayHasSlots = len(resp.AvailableSlots) > 0
	if !day.Open {
		resp.Error = closedDayMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

func nonNilSlots(slots []availability.Slot) []availability.Slot {
	if slots == nil {
		return []availability.Slot{}
	}
	return slots
}

func (s *HTTPServer) handleDays(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}

	start := s.now()
	if raw := r.URL.Query().Get("start"); raw != "" {
		var err error
		if start, err = parseDate(raw, s.loc()); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	days, err := queryInt64(r, "days")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if days == 0 {
		days = models.DefaultRangeDays
	}

	summary, err := s.svc.Availability.DayRange(r.Context(), res, start, int(days))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make(map[string]availability.DayAvailability, len(summary))
	for _, d := range summary {
		out[d.Date.Format(dateLayout)] = d
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": res.ID, "days": out})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	start, err := parseTime(r.URL.Query().Get("start"), s.loc())
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := parseTime(r.URL.Query().Get("end"), s.loc())
	if err != nil {
		writeError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}

	result, err := s.svc.Availability.Check(r.Context(), res, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if result.Conflicts == nil {
		result.Conflicts = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id": res.ID,
		"start":       start,
		"end":         end,
		"available":   result.Available,
		"in_window":   result.InWindow,
		"conflicts":   result.Conflicts,
	})
}

type createBookingRequest struct {
	ResourceID int64  `json:"resource_id"`
	Start      string `json:"start_datetime"`
	End        string `json:"end_datetime"`
	Notes      string `json:"notes"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ResourceID <= 0 {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}
	start, err := parseTime(body.Start, s.loc())
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_datetime: "+err.Error())
		return
	}
	end, err := parseTime(body.End, s.loc())
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_datetime: "+err.Error())
		return
	}

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), actorFrom(r.Context()), body.ResourceID, start, end, strings.TrimSpace(body.Notes))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.bookingResponse(booking))
}

type bookingResponse struct {
	*models.Booking
	HasEnded   bool `json:"has_ended"`
	ProofOfUse bool `json:"proof_of_use"`
}

func (s *HTTPServer) bookingResponse(b *models.Booking) bookingResponse {
	now := s.now()
	return bookingResponse{Booking: b, HasEnded: b.HasEnded(now), ProofOfUse: b.IsProofOfUse(now)}
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	var filter models.BookingFilter
	var err error
	if filter.ResourceID, err = queryInt64(r, "resource_id"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.RequesterID, err = queryInt64(r, "requester_id"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Status = strings.TrimSpace(r.URL.Query().Get("status"))
	if raw := r.URL.Query().Get("from"); raw != "" {
		if filter.From, err = parseTime(raw, s.loc()); err != nil {
			writeError(w, http.StatusBadRequest, "from: "+err.Error())
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if filter.To, err = parseTime(raw, s.loc()); err != nil {
			writeError(w, http.StatusBadRequest, "to: "+err.Error())
			return
		}
	}

	bookings, err := s.svc.Bookings.ListBookings(r.Context(), actorFrom(r.Context()), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, s.bookingResponse(&bookings[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bookingResponse(booking))
}

func (s *HTTPServer) handleApproveBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.svc.Bookings.ApproveBooking)
}

func (s *HTTPServer) handleRejectBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.svc.Bookings.RejectBooking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.svc.Bookings.CancelBooking)
}

func (s *HTTPServer) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, actor *models.User, id int64) (*models.Booking, error),
) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	booking, err := apply(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.bookingResponse(booking))
}

type waitlistRequest struct {
	RequestedAt string `json:"requested_datetime"`
}

func (s *HTTPServer) handleJoinWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body waitlistRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	requestedAt, err := parseTime(body.RequestedAt, s.loc())
	if err != nil {
		writeError(w, http.StatusBadRequest, "requested_datetime: "+err.Error())
		return
	}

	actor := actorFrom(r.Context())
	entry, err := s.svc.Waitlist.Join(r.Context(), actor, id, requestedAt)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	position, err := s.svc.Waitlist.Position(r.Context(), actor, id, entry.RequestedAt)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry, "position": position})
}

func (s *HTTPServer) handleWaitlistPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	requestedAt, err := parseTime(r.URL.Query().Get("requested_datetime"), s.loc())
	if err != nil {
		writeError(w, http.StatusBadRequest, "requested_datetime: "+err.Error())
		return
	}
	position, err := s.svc.Waitlist.Position(r.Context(), actorFrom(r.Context()), id, requestedAt)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": id, "requested_datetime": requestedAt, "position": position})
}

func (s *HTTPServer) handleListWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.svc.Waitlist.List(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.WaitlistEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *HTTPServer) handleLeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Waitlist.Leave(r.Context(), actorFrom(r.Context()), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRemoveWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Waitlist.Delete(r.Context(), actorFrom(r.Context()), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *HTTPServer) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	var body reviewRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	review, err := s.svc.Reviews.CreateReview(r.Context(), actorFrom(r.Context()), res.ID, body.Rating, body.Comment)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (s *HTTPServer) handleListReviews(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resource(w, r)
	if !ok {
		return
	}
	reviews, stats, err := s.svc.Reviews.ListReviews(r.Context(), res.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": res.ID, "reviews": reviews, "stats": stats})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, actorFrom(r.Context()))
}

func (s *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.Users.Messages(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
