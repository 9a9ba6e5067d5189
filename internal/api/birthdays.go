package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nyashahama/bornify-backend/internal/blob"
	"github.com/nyashahama/bornify-backend/internal/calendar"
	"github.com/nyashahama/bornify-backend/internal/feed"
	"github.com/nyashahama/bornify-backend/internal/reminder"
	"github.com/nyashahama/bornify-backend/internal/store"
)

const (
	defaultRelation   = "Other"
	defaultLeadDays   = 1
	maxNameLen        = 100
	maxNoteLen        = 500
	maxImportBytes    = 2 << 20
	defaultUpcomingIn = 30
)

var relations = []string{"Friend", "Family", "Colleague", "Relative", "Partner", "Other"}

type birthdayResponse struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	BirthDate        calendar.Date `json:"birthdate"`
	Relation         string        `json:"relation"`
	Note             string        `json:"note"`
	ImageURL         *string       `json:"image_url"`
	NotifyBeforeDays int           `json:"notify_before_days"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func toBirthdayResponse(b store.Birthday) birthdayResponse {
	resp := birthdayResponse{
		ID:               b.ID.String(),
		Name:             b.Name,
		BirthDate:        b.BirthDate,
		Relation:         b.Relation,
		Note:             b.Note,
		NotifyBeforeDays: b.NotifyBeforeDays,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	if b.ImageURL.Valid {
		resp.ImageURL = &b.ImageURL.String
	}
	return resp
}

// ─── GET /api/birthdays ───────────────────────────────────────────────────────

func (s *Server) handleListBirthdays(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListBirthdaysByUser(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list birthdays: %w", err))
		return
	}
	out := make([]birthdayResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toBirthdayResponse(b))
	}
	respond(w, http.StatusOK, out)
}

// ─── POST /api/birthdays ──────────────────────────────────────────────────────

// birthdayInput is the writable part of a birthday. Nil means "not sent",
// which lets create and partial update share the parser.
type birthdayInput struct {
	Name             *string `json:"name"`
	BirthDate        *string `json:"birthdate"`
	Relation         *string `json:"relation"`
	Note             *string `json:"note"`
	NotifyBeforeDays *int    `json:"notify_before_days"`

	avatar io.ReadCloser
}

// handleCreateBirthday accepts JSON, or multipart/form-data with an optional
// "avatar" file part.
func (s *Server) handleCreateBirthday(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readBirthdayInput(w, r)
	if !ok {
		return
	}
	if in.avatar != nil {
		defer in.avatar.Close()
	}

	if in.Name == nil || strings.TrimSpace(*in.Name) == "" || in.BirthDate == nil || *in.BirthDate == "" {
		respondErr(w, http.StatusBadRequest, "name and birthdate are required")
		return
	}
	p := store.CreateBirthdayParams{
		UserID:           userFrom(r.Context()).ID,
		Relation:         defaultRelation,
		NotifyBeforeDays: defaultLeadDays,
	}
	if !s.applyInput(w, in, &p.Name, &p.BirthDate, &p.Relation, &p.Note, &p.NotifyBeforeDays) {
		return
	}

	if in.avatar != nil {
		key, ok := s.storeAvatar(w, r, in.avatar)
		if !ok {
			return
		}
		p.ImageKey, p.ImageURL = key, s.blobs.URL(key)
	}

	b, err := s.store.CreateBirthday(r.Context(), p)
	if err != nil {
		s.discardBlob(r, p.ImageKey)
		s.respondInternalErr(w, r, fmt.Errorf("create birthday: %w", err))
		return
	}
	respond(w, http.StatusCreated, toBirthdayResponse(b))
}

// ─── PUT /api/birthdays/{birthdayID} ─────────────────────────────────────────

// handleUpdateBirthday patches the sent fields. A new avatar replaces the old
// file, which is deleted once the row points at the new one.
func (s *Server) handleUpdateBirthday(w http.ResponseWriter, r *http.Request) {
	id, ok := birthdayID(w, r)
	if !ok {
		return
	}
	userID := userFrom(r.Context()).ID

	existing, err := s.store.GetBirthday(r.Context(), id, userID)
	if errors.Is(err, store.ErrNotFound) {
		respondErr(w, http.StatusNotFound, "birthday not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("update birthday: %w", err))
		return
	}

	in, ok := s.readBirthdayInput(w, r)
	if !ok {
		return
	}
	if in.avatar != nil {
		defer in.avatar.Close()
	}

	var (
		name, relation, note string
		date                 calendar.Date
		lead                 int
	)
	if !s.applyInput(w, in, &name, &date, &relation, &note, &lead) {
		return
	}
	p := store.UpdateBirthdayParams{ID: id, UserID: userID}
	if in.Name != nil {
		p.Name = &name
	}
	if in.BirthDate != nil {
		p.BirthDate = &date
	}
	if in.Relation != nil {
		p.Relation = &relation
	}
	if in.Note != nil {
		p.Note = &note
	}
	if in.NotifyBeforeDays != nil {
		p.NotifyBeforeDays = &lead
	}

	var newKey string
	if in.avatar != nil {
		key, ok := s.storeAvatar(w, r, in.avatar)
		if !ok {
			return
		}
		url := s.blobs.URL(key)
		newKey = key
		p.ImageKey, p.ImageURL = &key, &url
	}

	b, err := s.store.UpdateBirthday(r.Context(), p)
	if err != nil {
		s.discardBlob(r, newKey)
		if errors.Is(err, store.ErrNotFound) {
			respondErr(w, http.StatusNotFound, "birthday not found")
			return
		}
		s.respondInternalErr(w, r, fmt.Errorf("update birthday: %w", err))
		return
	}
	if newKey != "" && existing.ImageKey.Valid {
		s.discardBlob(r, existing.ImageKey.String)
	}
	respond(w, http.StatusOK, toBirthdayResponse(b))
}

// ─── DELETE /api/birthdays/{birthdayID} ──────────────────────────────────────

func (s *Server) handleDeleteBirthday(w http.ResponseWriter, r *http.Request) {
	id, ok := birthdayID(w, r)
	if !ok {
		return
	}

	b, err := s.store.DeleteBirthday(r.Context(), id, userFrom(r.Context()).ID)
	if errors.Is(err, store.ErrNotFound) {
		respondErr(w, http.StatusNotFound, "birthday not found")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("delete birthday: %w", err))
		return
	}
	if b.ImageKey.Valid {
		s.discardBlob(r, b.ImageKey.String)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── GET /api/birthdays/upcoming ──────────────────────────────────────────────

type upcomingResponse struct {
	birthdayResponse
	NextDate   calendar.Date `json:"next_date"`
	DaysUntil  int           `json:"days_until"`
	TurningAge *int          `json:"turning_age,omitempty"`
}

// handleUpcomingBirthdays lists birthdays whose next occurrence falls within
// ?days= (default 30) of today, soonest first.
func (s *Server) handleUpcomingBirthdays(w http.ResponseWriter, r *http.Request) {
	window := defaultUpcomingIn
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 366 {
			respondErr(w, http.StatusBadRequest, "days must be between 0 and 366")
			return
		}
		window = n
	}

	list, err := s.store.ListBirthdaysByUser(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("upcoming birthdays: %w", err))
		return
	}

	today := s.today()
	out := make([]upcomingResponse, 0, len(list))
	for _, b := range list {
		next, err := calendar.NextOccurrence(today, b.BirthDate.Month, b.BirthDate.Day)
		if err != nil {
			s.logger.Warn("api: skipping corrupt birthday", "birthday_id", b.ID, "error", err, logField(r))
			continue
		}
		days := today.DaysUntil(next)
		if days > window {
			continue
		}
		item := upcomingResponse{
			birthdayResponse: toBirthdayResponse(b),
			NextDate:         next,
			DaysUntil:        days,
		}
		if b.BirthDate.Year != feed.UnknownYear {
			age := calendar.TurningAge(b.BirthDate, next)
			item.TurningAge = &age
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysUntil != out[j].DaysUntil {
			return out[i].DaysUntil < out[j].DaysUntil
		}
		return out[i].Name < out[j].Name
	})
	respond(w, http.StatusOK, out)
}

// ─── GET /api/birthdays/calendar.ics ──────────────────────────────────────────

func (s *Server) handleCalendarFeed(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	list, err := s.store.ListBirthdaysByUser(r.Context(), user.ID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("calendar feed: %w", err))
		return
	}

	events := make([]feed.Event, 0, len(list))
	for _, b := range list {
		events = append(events, feed.Event{
			ID:        b.ID,
			Name:      b.Name,
			BirthDate: b.BirthDate,
			LeadDays:  b.NotifyBeforeDays,
		})
	}

	var buf bytes.Buffer
	if err := feed.WriteICS(&buf, "Bornify birthdays", events, s.clock.Now()); err != nil {
		s.respondInternalErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="bornify.ics"`)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ─── POST /api/birthdays/import ───────────────────────────────────────────────

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// handleImportVCards adds one birthday per card that carries a BDAY. The
// body is either a raw .vcf or multipart/form-data with a "file" part.
// Imported rows are all-or-nothing.
func (s *Server) handleImportVCards(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if isMultipart(r) {
		f, _, err := r.FormFile("file")
		if err != nil {
			respondErr(w, http.StatusBadRequest, "missing file part")
			return
		}
		defer f.Close()
		src = f
	}

	res, err := feed.ParseVCards(src)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondErr(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		respondErr(w, http.StatusBadRequest, "not a vCard file")
		return
	}

	userID := userFrom(r.Context()).ID
	today := s.today()
	skipped := res.Skipped
	rows := make([]store.CreateBirthdayParams, 0, len(res.Contacts))
	for _, c := range res.Contacts {
		if (c.YearKnown && c.BirthDate.After(today)) || hasControlChars(c.Name) {
			skipped++
			continue
		}
		rows = append(rows, store.CreateBirthdayParams{
			UserID:           userID,
			Name:             truncate(c.Name, maxNameLen),
			BirthDate:        c.BirthDate,
			Relation:         defaultRelation,
			NotifyBeforeDays: defaultLeadDays,
		})
	}

	n, err := s.store.ImportBirthdays(r.Context(), rows)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("import vcards: %w", err))
		return
	}
	s.logger.Info("api: vcards imported", "user_id", userID, "imported", n, "skipped", skipped, logField(r))
	respond(w, http.StatusOK, importResponse{Imported: n, Skipped: skipped})
}

// ─── GET /uploads/{key} ───────────────────────────────────────────────────────

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	f, ctype, err := s.blobs.Open(chi.URLParam(r, "key"))
	if errors.Is(err, blob.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, "", time.Time{}, f)
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

// readBirthdayInput decodes a JSON or multipart body. It writes the error
// response itself and returns false on failure.
func (s *Server) readBirthdayInput(w http.ResponseWriter, r *http.Request) (birthdayInput, bool) {
	var in birthdayInput
	if !isMultipart(r) {
		return in, decode(w, r, &in)
	}

	r.Body = http.MaxBytesReader(w, r.Body, blob.MaxSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondErr(w, http.StatusRequestEntityTooLarge, "upload too large")
			return in, false
		}
		respondErr(w, http.StatusBadRequest, "invalid multipart body")
		return in, false
	}

	field := func(key string) *string {
		if vs, ok := r.MultipartForm.Value[key]; ok && len(vs) > 0 {
			v := vs[0]
			return &v
		}
		return nil
	}
	in.Name = field("name")
	in.BirthDate = field("birthdate")
	in.Relation = field("relation")
	in.Note = field("note")
	if v := field("notify_before_days"); v != nil {
		n, err := strconv.Atoi(strings.TrimSpace(*v))
		if err != nil {
			respondErr(w, http.StatusBadRequest, "notify_before_days must be a number")
			return in, false
		}
		in.NotifyBeforeDays = &n
	}

	f, _, err := r.FormFile("avatar")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		respondErr(w, http.StatusBadRequest, "invalid avatar part")
		return in, false
	default:
		in.avatar = f
	}
	return in, true
}

// applyInput validates every sent field of in and copies it to the
// destinations. Unsent fields leave their destination untouched.
func (s *Server) applyInput(
	w http.ResponseWriter,
	in birthdayInput,
	name *string,
	date *calendar.Date,
	relation, note *string,
	lead *int,
) bool {
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		if v == "" || utf8.RuneCountInString(v) > maxNameLen {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("name must be 1 to %d characters", maxNameLen))
			return false
		}
		if hasControlChars(v) {
			respondErr(w, http.StatusBadRequest, "name must not contain control characters")
			return false
		}
		*name = v
	}
	if in.BirthDate != nil {
		d, ok := s.parsePastDate(w, *in.BirthDate, "birthdate")
		if !ok {
			return false
		}
		*date = d
	}
	if in.Relation != nil {
		v, ok := canonicalRelation(*in.Relation)
		if !ok {
			respondErr(w, http.StatusBadRequest, "relation must be one of "+strings.Join(relations, ", "))
			return false
		}
		*relation = v
	}
	if in.Note != nil {
		v := strings.TrimSpace(*in.Note)
		if utf8.RuneCountInString(v) > maxNoteLen {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("note must be at most %d characters", maxNoteLen))
			return false
		}
		*note = v
	}
	if in.NotifyBeforeDays != nil {
		v := *in.NotifyBeforeDays
		if v < 0 || v > reminder.MaxLeadDays {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("notify_before_days must be between 0 and %d", reminder.MaxLeadDays))
			return false
		}
		*lead = v
	}
	return true
}

// storeAvatar saves an uploaded photo and returns its key.
func (s *Server) storeAvatar(w http.ResponseWriter, r *http.Request, f io.Reader) (string, bool) {
	key, err := s.blobs.Put(r.Context(), f)
	switch {
	case errors.Is(err, blob.ErrTooLarge):
		respondErr(w, http.StatusRequestEntityTooLarge, "avatar too large")
		return "", false
	case errors.Is(err, blob.ErrUnsupported):
		respondErr(w, http.StatusUnsupportedMediaType, "avatar must be a JPEG, PNG, GIF or WebP image")
		return "", false
	case err != nil:
		s.respondInternalErr(w, r, fmt.Errorf("store avatar: %w", err))
		return "", false
	}
	return key, true
}

// discardBlob deletes a photo that is no longer referenced. Failure leaves
// an orphan file, so it is logged and otherwise ignored.
func (s *Server) discardBlob(r *http.Request, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(r.Context(), key); err != nil {
		s.logger.Warn("api: orphaned upload", "key", key, "error", err, logField(r))
	}
}

func canonicalRelation(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRelation, true
	}
	for _, rel := range relations {
		if strings.EqualFold(rel, v) {
			return rel, true
		}
	}
	return "", false
}

func birthdayID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "birthdayID"))
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid birthday id")
		return uuid.Nil, false
	}
	return id, true
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// hasControlChars reports whether s holds CR, LF, tab or any other control
// character. Names end up in mail subjects and calendar summaries.
func hasControlChars(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
