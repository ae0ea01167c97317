// Package services – RequestService
//
// This file implements request creation (plain and idempotent) and the read
// side of the request stores: single lookup, role-scoped listing, the
// provider open feed, and the timeline. Text input is NFC-normalized,
// trimmed, and whitespace-collapsed before it is stored.
package services

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-marketplace-backend/internal/domain"
	"github.com/tbourn/go-marketplace-backend/internal/geo"
	"github.com/tbourn/go-marketplace-backend/internal/repo"
	"github.com/tbourn/go-marketplace-backend/internal/utils"
)

// Text limits, in runes.
const (
	TitleMaxRunes       = 120
	DescriptionMaxRunes = 4000
	AddressMaxRunes     = 255
)

// Feed sort orders.
const (
	SortDistance = "distance"
	SortCreated  = "created"
)

// CreateInput is the client-supplied content of a new request.
type CreateInput struct {
	ServiceTypeID int64
	Title         string
	Description   string
	Address       string
	Lat           *float64
	Lng           *float64
	ScheduledAt   *time.Time
	PriceOffered  *decimal.Decimal
	// ProviderID optionally pins the request to one provider.
	ProviderID *int64
}

// ListFilter narrows a role-scoped listing.
type ListFilter struct {
	Status *domain.RequestStatus
	Page   int
	Limit  int
}

// FeedQuery parameterizes the provider open feed.
type FeedQuery struct {
	RadiusKm float64
	Sort     string
	Page     int
	Limit    int
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// FeedItem is an open request annotated with its distance from the provider.
type FeedItem struct {
	domain.ServiceRequest
	DistanceKm float64 `json:"distance_km"`
}

// ActorSnapshot identifies who performed a transition.
type ActorSnapshot struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"role,omitempty"`
}

// TimelineEntry is a transition with its actor resolved. Actor is nil for
// system transitions.
type TimelineEntry struct {
	domain.RequestTransition
	Actor *ActorSnapshot `json:"actor"`
}

// RequestService creates requests and serves request queries.
type RequestService struct {
	DB      *gorm.DB
	Catalog Catalog
	IDs     *snowflake.Node

	// FeedDefaultRadiusKm applies when a feed query gives no radius.
	FeedDefaultRadiusKm float64
	// FeedMaxRadiusKm is the largest radius a feed query may ask for.
	FeedMaxRadiusKm float64
}

// NewRequestService constructs a RequestService with a DB-backed catalog and
// the default feed radii.
func NewRequestService(db *gorm.DB, ids *snowflake.Node) *RequestService {
	return &RequestService{
		DB:                  db,
		Catalog:             DBCatalog{DB: db},
		IDs:                 ids,
		FeedDefaultRadiusKm: 25,
		FeedMaxRadiusKm:     100,
	}
}

// Create validates in and inserts a new PENDING request owned by the caller.
func (s *RequestService) Create(ctx context.Context, id domain.Identity, in CreateInput) (*domain.ServiceRequest, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attribute.Int64("user.id", id.UserID)))
	defer span.End()

	r, err := s.prepare(ctx, id, in)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateRequest(ctx, s.DB, r); err != nil {
		return nil, err
	}
	return r, nil
}

// CreateIdempotent creates a request at most once per key. The first call
// with a key creates the request; every later call with that key returns
// the same request unchanged, whatever its payload. replayed reports
// whether the result came from an earlier call.
//
// An empty key falls back to Create. A key recorded by another user yields
// ErrKeyOwnedByOther.
func (s *RequestService) CreateIdempotent(ctx context.Context, id domain.Identity, in CreateInput, key string) (r *domain.ServiceRequest, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		r, err = s.Create(ctx, id, in)
		return r, false, err
	}

	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "CreateIdempotent", trace.WithAttributes(
		attribute.Int64("user.id", id.UserID),
		attribute.String("idempotency.key", key),
	))
	defer span.End()

	if err := requireClient(id); err != nil {
		return nil, false, err
	}

	// Fast path: the key was used before.
	if prev, err := s.replay(ctx, s.DB, id, key); err == nil {
		return prev, true, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	fresh, err := s.prepare(ctx, id, in)
	if err != nil {
		return nil, false, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if prev, err := s.replay(ctx, tx, id, key); err == nil {
			r, replayed = prev, true
			return nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := repo.CreateRequest(ctx, tx, fresh); err != nil {
			return err
		}
		if _, err := repo.CreateIdempotencyKey(ctx, tx, key, id.UserID, fresh.ID); err != nil {
			return err
		}
		r = fresh
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost the race; our insert was rolled back with the transaction.
		winner, werr := s.replay(ctx, s.DB, id, key)
		if errors.Is(werr, repo.ErrNotFound) {
			return nil, false, ErrRequestNotFound
		}
		if werr != nil {
			return nil, false, werr
		}
		return winner, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return r, replayed, nil
}

// replay resolves key to the request it produced. It returns repo.ErrNotFound
// when the key is unused.
func (s *RequestService) replay(ctx context.Context, db *gorm.DB, id domain.Identity, key string) (*domain.ServiceRequest, error) {
	rec, err := repo.GetIdempotencyKey(ctx, db, key)
	if err != nil {
		return nil, err
	}
	if rec.UserID != id.UserID {
		return nil, ErrKeyOwnedByOther
	}
	r, err := repo.GetRequest(ctx, db, rec.RequestID)
	if repo.IsNotFound(err) {
		return nil, ErrRequestNotFound
	}
	return r, err
}

// KeyUsed reports whether userID already created a request with key. It
// backs the HTTP idempotency pre-check and never fails the request on its own.
func (s *RequestService) KeyUsed(ctx context.Context, userID int64, key string) (bool, error) {
	rec, err := repo.GetIdempotencyKey(ctx, s.DB, strings.TrimSpace(key))
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.UserID == userID, nil
}

func requireClient(id domain.Identity) error {
	switch id.Role {
	case domain.RoleClient:
		return nil
	case domain.RoleProvider, domain.RoleAdmin:
		return ErrRoleNotAllowed
	default:
		return ErrRoleNotAllowed
	}
}

// prepare validates in, resolves its references, and builds the row to insert.
func (s *RequestService) prepare(ctx context.Context, id domain.Identity, in CreateInput) (*domain.ServiceRequest, error) {
	if err := requireClient(id); err != nil {
		return nil, err
	}

	title := clipRunes(normalizeText(in.Title), TitleMaxRunes)
	if title == "" {
		return nil, ErrTitleRequired
	}
	desc := norm.NFC.String(strings.TrimSpace(in.Description))
	if utf8.RuneCountInString(desc) > DescriptionMaxRunes {
		return nil, validationf("description must be at most %d characters", DescriptionMaxRunes)
	}
	addr := normalizeText(in.Address)
	if utf8.RuneCountInString(addr) > AddressMaxRunes {
		return nil, validationf("address must be at most %d characters", AddressMaxRunes)
	}
	if (in.Lat == nil) != (in.Lng == nil) {
		return nil, validationf("lat and lng must be given together")
	}
	if in.Lat != nil && !geo.ValidCoordinates(*in.Lat, *in.Lng) {
		return nil, validationf("lat must be in [-90,90] and lng in [-180,180]")
	}
	if err := validatePrice(in.PriceOffered); err != nil {
		return nil, err
	}
	if in.ServiceTypeID <= 0 {
		return nil, validationf("service_type_id is required")
	}

	st, err := s.Catalog.ServiceType(ctx, in.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	if !st.Active {
		return nil, ErrServiceTypeNotFound
	}

	if in.ProviderID != nil {
		if *in.ProviderID == id.UserID {
			return nil, validationf("a request cannot be pinned to its own client")
		}
		u, err := s.Catalog.User(ctx, *in.ProviderID)
		if err != nil {
			return nil, err
		}
		if u.Role != domain.RoleProvider {
			return nil, validationf("pinned user %d is not a provider", u.ID)
		}
	}

	r := &domain.ServiceRequest{
		ID:            s.IDs.Generate().Int64(),
		ClientID:      id.UserID,
		ProviderID:    in.ProviderID,
		ServiceTypeID: st.ID,
		Status:        domain.StatusPending,
		Title:         title,
		Description:   desc,
		Address:       addr,
		Lat:           in.Lat,
		Lng:           in.Lng,
		ScheduledAt:   in.ScheduledAt,
	}
	if in.PriceOffered != nil {
		r.PriceOffered = decimal.NewNullDecimal(*in.PriceOffered)
	}
	return r, nil
}

// Get returns a request visible to the caller.
func (s *RequestService) Get(ctx context.Context, id domain.Identity, requestID int64) (*domain.ServiceRequest, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.Int64("request.id", requestID)))
	defer span.End()

	r, err := repo.GetRequest(ctx, s.DB, requestID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if !canView(id, r) {
		return nil, ErrNotVisible
	}
	return r, nil
}

// canView: admins see everything, clients their own requests, providers the
// requests assigned to them plus unpinned PENDING ones.
func canView(id domain.Identity, r *domain.ServiceRequest) bool {
	switch id.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleClient:
		return r.ClientID == id.UserID
	case domain.RoleProvider:
		if r.ProviderID != nil {
			return *r.ProviderID == id.UserID
		}
		return r.Status == domain.StatusPending
	default:
		return false
	}
}

// Scope returns the listing filter for the caller's role.
func (s *RequestService) Scope(id domain.Identity, status *domain.RequestStatus) (repo.RequestFilter, error) {
	f := repo.RequestFilter{Status: status}
	switch id.Role {
	case domain.RoleClient:
		f.ClientID = &id.UserID
	case domain.RoleProvider:
		f.ProviderID = &id.UserID
	case domain.RoleAdmin:
	default:
		return f, ErrRoleNotAllowed
	}
	return f, nil
}

// List returns the caller's requests, newest first: a client's own, a
// provider's assigned, or all for an admin.
func (s *RequestService) List(ctx context.Context, id domain.Identity, lf ListFilter) (*Page[domain.ServiceRequest], error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "List", trace.WithAttributes(
		attribute.Int64("user.id", id.UserID),
		attribute.Int("page", lf.Page),
		attribute.Int("page_size", lf.Limit),
	))
	defer span.End()

	f, err := s.Scope(id, lf.Status)
	if err != nil {
		return nil, err
	}
	page, limit, offset := utils.Paginate(lf.Page, lf.Limit)
	out := &Page[domain.ServiceRequest]{Items: []domain.ServiceRequest{}, Page: page, Limit: limit}

	total, err := repo.CountRequests(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	out.Total, out.Pages = total, utils.TotalPages(total, limit)
	if total == 0 || offset >= int(total) {
		return out, nil
	}
	items, err := repo.ListRequestsPage(ctx, s.DB, f, offset, limit)
	if err != nil {
		return nil, err
	}
	out.Items = items
	return out, nil
}

// ListStats returns the row count and newest update of the caller's listing,
// for conditional GETs.
func (s *RequestService) ListStats(ctx context.Context, id domain.Identity, status *domain.RequestStatus) (int64, *time.Time, error) {
	f, err := s.Scope(id, status)
	if err != nil {
		return 0, nil, err
	}
	return repo.RequestsStats(ctx, s.DB, f)
}

// OpenFeed returns the PENDING requests a provider could claim within
// q.RadiusKm of their profile location.
//
// Candidates are prefiltered by bounding box in SQL and then checked against
// the exact great-circle distance.
func (s *RequestService) OpenFeed(ctx context.Context, id domain.Identity, q FeedQuery) (*Page[FeedItem], error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "OpenFeed", trace.WithAttributes(
		attribute.Int64("user.id", id.UserID),
		attribute.Float64("radius_km", q.RadiusKm),
		attribute.String("sort", q.Sort),
	))
	defer span.End()

	switch id.Role {
	case domain.RoleProvider:
	case domain.RoleClient, domain.RoleAdmin:
		return nil, ErrRoleNotAllowed
	default:
		return nil, ErrRoleNotAllowed
	}

	radius := q.RadiusKm
	switch {
	case radius == 0:
		radius = s.FeedDefaultRadiusKm
	case radius < 0 || radius > s.FeedMaxRadiusKm:
		return nil, validationf("radius_km must be in (0, %g]", s.FeedMaxRadiusKm)
	}
	sortBy := q.Sort
	switch sortBy {
	case "":
		sortBy = SortDistance
	case SortDistance, SortCreated:
	default:
		return nil, validationf("sort must be %q or %q", SortDistance, SortCreated)
	}

	profile, err := repo.GetProviderProfile(ctx, s.DB, id.UserID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	types, err := repo.ProviderServiceTypeIDs(ctx, s.DB, id.UserID)
	if err != nil {
		return nil, err
	}
	cands, err := repo.ListFeedCandidates(ctx, s.DB, repo.FeedFilter{
		ProviderID:     id.UserID,
		ServiceTypeIDs: types,
		Box:            geo.BoundingBox(profile.Lat, profile.Lng, radius),
	})
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(cands))
	for _, r := range cands {
		d := geo.HaversineKm(profile.Lat, profile.Lng, *r.Lat, *r.Lng)
		if d <= radius {
			items = append(items, FeedItem{ServiceRequest: r, DistanceKm: d})
		}
	}
	// Candidates arrive newest first; a stable sort keeps that as the tiebreak.
	if sortBy == SortDistance {
		sort.SliceStable(items, func(i, j int) bool { return items[i].DistanceKm < items[j].DistanceKm })
	}

	page, limit, offset := utils.Paginate(q.Page, q.Limit)
	total := int64(len(items))
	out := &Page[FeedItem]{Items: []FeedItem{}, Page: page, Limit: limit, Total: total, Pages: utils.TotalPages(total, limit)}
	if offset < len(items) {
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		out.Items = items[offset:end]
	}
	return out, nil
}

// Timeline returns the transitions of a visible request in chronological
// order, each with its actor resolved.
func (s *RequestService) Timeline(ctx context.Context, id domain.Identity, requestID int64) ([]TimelineEntry, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Timeline", trace.WithAttributes(attribute.Int64("request.id", requestID)))
	defer span.End()

	if _, err := s.Get(ctx, id, requestID); err != nil {
		return nil, err
	}
	rows, err := repo.ListTransitions(ctx, s.DB, requestID)
	if err != nil {
		return nil, err
	}

	var ids []int64
	seen := map[int64]bool{}
	for _, t := range rows {
		if t.ActorID != nil && !seen[*t.ActorID] {
			seen[*t.ActorID] = true
			ids = append(ids, *t.ActorID)
		}
	}
	users, err := repo.GetUsers(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	out := make([]TimelineEntry, 0, len(rows))
	for _, t := range rows {
		e := TimelineEntry{RequestTransition: t}
		if t.ActorID != nil {
			snap := &ActorSnapshot{ID: *t.ActorID}
			if u, ok := users[*t.ActorID]; ok {
				snap.Name, snap.Role = u.Name, u.Role
			}
			e.Actor = snap
		}
		out = append(out, e)
	}
	return out, nil
}

// normalizeText NFC-normalizes s, trims it, and collapses runs of whitespace.
func normalizeText(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	if n > 0 && utf8.RuneCountInString(s) > n {
		return strings.TrimSpace(string([]rune(s)[:n]))
	}
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
